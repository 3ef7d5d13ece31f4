package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
)

const defaultGateway = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "check":
		runCheckCmd(args)
	case "evaluate":
		runEvaluateCmd(args)
	case "approval":
		runApprovalCmd(args)
	case "decision":
		runDecisionCmd(args)
	case "status":
		runStatusCmd(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runEvaluateCmd(args []string) {
	fs := newFlagSet("evaluate")
	changes := fs.String("changes", "", "changeset json file")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("changeset id required")
	}
	if *changes == "" {
		fail("changeset file required")
	}
	var req evaluateRequest
	loadJSON(*changes, &req)
	client := newClient(*fs.gateway, *fs.actor, *fs.roles)
	rep, err := client.Evaluate(context.Background(), fs.Arg(0), &req)
	check(err)
	printJSON(rep)
}

func runApprovalCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "record":
		fs := newFlagSet("approval record")
		role := fs.String("role", "", "approving role")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 1 {
			fail("changeset id required")
		}
		if *role == "" {
			fail("role required")
		}
		client := newClient(*fs.gateway, *fs.actor, *fs.roles)
		ap, err := client.RecordApproval(context.Background(), fs.Arg(0), *role)
		check(err)
		printJSON(ap)
	case "list":
		fs := newFlagSet("approval list")
		fs.ParseArgs(args[1:])
		if fs.NArg() < 1 {
			fail("changeset id required")
		}
		client := newClient(*fs.gateway, *fs.actor, *fs.roles)
		approvals, err := client.ListApprovals(context.Background(), fs.Arg(0))
		check(err)
		printJSON(approvals)
	default:
		usage()
		os.Exit(1)
	}
}

func runDecisionCmd(args []string) {
	fs := newFlagSet("decision")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("changeset id required")
	}
	client := newClient(*fs.gateway, *fs.actor, *fs.roles)
	payload, err := client.GetDecision(context.Background(), fs.Arg(0))
	check(err)
	printJSON(payload)
}

func runStatusCmd(args []string) {
	fs := newFlagSet("status")
	fs.ParseArgs(args)
	client := newClient(*fs.gateway, *fs.actor, *fs.roles)
	status, err := client.Health(context.Background())
	check(err)
	printJSON(status)
}

type flagSet struct {
	*flag.FlagSet
	gateway *string
	actor   *string
	roles   *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	gateway := fs.String("gateway", envOr("MERGEGATE_GATEWAY", defaultGateway), "gateway base url")
	actor := fs.String("actor", envOr("MERGEGATE_ACTOR", ""), "actor id")
	roles := fs.String("roles", envOr("MERGEGATE_ROLES", ""), "comma-separated actor roles")
	return &flagSet{FlagSet: fs, gateway: gateway, actor: actor, roles: roles}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func loadJSON(path string, out any) {
	// #nosec G304 -- CLI explicitly reads local files provided by the operator.
	data, err := os.ReadFile(path)
	check(err)
	if err := json.Unmarshal(data, out); err != nil {
		fail(fmt.Sprintf("invalid json: %v", err))
	}
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	check(err)
	fmt.Println(string(data))
}

func usage() {
	fmt.Print(`mergegatectl - merge gate CLI

Usage:
  mergegatectl check --ruleset config/ruleset.yaml --changes changes.json [--actor id] [--roles r1,r2]
  mergegatectl evaluate <changeset_id> --changes changes.json
  mergegatectl approval record <changeset_id> --role <role>
  mergegatectl approval list <changeset_id>
  mergegatectl decision <changeset_id>
  mergegatectl status

Global flags:
  --gateway   Gateway base URL (default from MERGEGATE_GATEWAY)
  --actor     Actor id (default from MERGEGATE_ACTOR)
  --roles     Comma-separated actor roles (default from MERGEGATE_ROLES)
`)
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
