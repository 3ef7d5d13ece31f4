package main

import (
	"context"
	"os"

	"github.com/mergegate/mergegate/core/engine/decide"
	"github.com/mergegate/mergegate/core/engine/enforce"
	"github.com/mergegate/mergegate/core/engine/report"
	"github.com/mergegate/mergegate/core/policy"
)

// changesFile is the on-disk changeset description the check and evaluate
// commands read. Content may be given inline or as a path to the manifest.
type changesFile struct {
	Files []changeEntry `json:"files"`
}

type changeEntry struct {
	Path        string `json:"path"`
	Kind        string `json:"kind"`
	Content     string `json:"content,omitempty"`
	ContentFile string `json:"content_file,omitempty"`
}

// runCheckCmd evaluates a changeset locally without a gateway, for CI jobs
// that carry the rule set in the repository.
func runCheckCmd(args []string) {
	fs := newFlagSet("check")
	ruleset := fs.String("ruleset", "config/ruleset.yaml", "rule set yaml file")
	changes := fs.String("changes", "", "changeset json file")
	fs.ParseArgs(args)
	if *changes == "" {
		fail("changeset file required")
	}

	rs, err := policy.LoadRuleSet(*ruleset)
	check(err)
	eng, err := decide.New(rs, nil)
	check(err)

	var cf changesFile
	loadJSON(*changes, &cf)
	files, err := cf.changedFiles()
	check(err)

	decision := eng.Run(context.Background(), decide.Input{
		ChangesetID: "local",
		Actor:       localActor(*fs.actor, *fs.roles),
		Files:       files,
	})
	printJSON(report.Render(decision))
	if decision.Outcome == decide.OutcomeBlock {
		os.Exit(1)
	}
}

func (cf *changesFile) changedFiles() ([]decide.ChangedFile, error) {
	out := make([]decide.ChangedFile, 0, len(cf.Files))
	for _, f := range cf.Files {
		cfile := decide.ChangedFile{Path: f.Path, Kind: decide.ChangeKind(f.Kind)}
		switch {
		case f.Content != "":
			cfile.Content = []byte(f.Content)
		case f.ContentFile != "":
			// #nosec G304 -- CLI explicitly reads local files provided by the operator.
			data, err := os.ReadFile(f.ContentFile)
			if err != nil {
				return nil, err
			}
			cfile.Content = data
		}
		out = append(out, cfile)
	}
	return out, nil
}

func localActor(id, roles string) enforce.Actor {
	actor := enforce.Actor{ID: id}
	for _, part := range splitRoles(roles) {
		actor.Roles = append(actor.Roles, policy.Role(part))
	}
	return actor
}
