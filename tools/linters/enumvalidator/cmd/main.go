package main

import (
	"github.com/kenzic/unhinged-side-quest-research-agent/tools/linters/enumvalidator"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
