package main

import (
	"flag"
)

// flagSet wraps flag.FlagSet the way pkg/cmd/eth2030/flags.go does, kept
// here in case a later flag needs a type flag.FlagSet has no Var helper
// for; avm32core's current flags are all covered by the stdlib helpers.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior, so
// callers control error handling rather than flag.Parse calling os.Exit.
func newCustomFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &flagSet{FlagSet: fs}
}
