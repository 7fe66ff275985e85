package main

import (
	"encoding/json"
	"fmt"

	"github.com/graydot/potter/internal/buildinfo"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func printVersion() {
	info := buildinfo.Get()
	fmt.Printf("potterd %s\n", info.Version)
	fmt.Printf("  build id:   %s\n", info.ID())
	fmt.Printf("  commit:     %s\n", info.Commit)
	fmt.Printf("  built:      %s\n", info.BuildTime)
	fmt.Printf("  go version: %s\n", info.GoVersion)
}
