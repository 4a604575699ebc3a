// Package flagx lets several components parse their own flags out of one
// shared argument list without tripping over each other's flags.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns the subset of args made of allowedFlags and their values.
//
// Both "-f value" and "-f=value" forms are recognised. A token that follows an
// allowed flag is taken as its value unless it starts with "-". The result is
// never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	matched, _ := partition(args, allowedFlags)
	return matched
}

// StripArgs is the complement of FilterArgs: it returns args without flags
// and their values, keeping everything else in order.
func StripArgs(args []string, flags []string) []string {
	_, rest := partition(args, flags)
	return rest
}

func partition(args []string, flags []string) (matched, rest []string) {
	known := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		known[f] = struct{}{}
	}

	matched = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := known[name]; ok {
				matched = append(matched, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if _, ok := known[arg]; ok {
			matched = append(matched, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				matched = append(matched, args[i+1])
				i++
			}
			continue
		}
		rest = append(rest, arg)
	}
	return matched, rest
}

// JSONConfigPath extracts the config file path given with -c or -config.
// Other arguments are ignored; an empty string means no file was requested.
func JSONConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
