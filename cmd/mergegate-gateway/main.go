package main

import (
	"log"

	"github.com/mergegate/mergegate/core/gateway"
	"github.com/mergegate/mergegate/core/infra/buildinfo"
	"github.com/mergegate/mergegate/core/infra/config"
)

func main() {
	log.Println("mergegate gateway starting...")
	buildinfo.Log("mergegate-gateway")
	cfg := config.Load()
	if err := gateway.Run(cfg); err != nil {
		log.Fatalf("gateway error: %v", err)
	}
}
