// Package main provides a CLI tool for validating and inspecting sentinel
// rule files.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"flock-sentinel/internal/catalog"
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidateCmd(os.Args[2:])
	case "list":
		runListCmd(os.Args[2:])
	case "test":
		runTestCmd(os.Args[2:])
	case "builtin":
		runBuiltinCmd(os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("sentinel-rules %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: sentinel-rules <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  validate  Validate YAML rule files or directories\n")
	fmt.Fprintf(os.Stderr, "  list      List rules found in files or directories\n")
	fmt.Fprintf(os.Stderr, "  test      Match a value against a pattern\n")
	fmt.Fprintf(os.Stderr, "  builtin   Print the built-in pattern catalog as YAML\n\n")
	fmt.Fprintf(os.Stderr, "Files whose name contains \"heuristic\" hold heuristic rules;\n")
	fmt.Fprintf(os.Stderr, "other files hold literal rules.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	fmt.Fprintf(os.Stderr, "  -version  Show version and exit\n")
}

func runValidateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show detailed rule information")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one path is required\n")
		fmt.Fprintf(os.Stderr, "Usage: sentinel-rules validate [--verbose] <path> [<path>...]\n")
		os.Exit(1)
	}

	os.Exit(runValidate(os.Stdout, paths, *verbose))
}

func runListCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"rules"}
	}

	os.Exit(runList(os.Stdout, paths))
}

func runTestCmd(args []string) {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	kind := fs.String("kind", string(matcher.KindRegex), "Pattern kind: regex, prefix, range or token")
	pattern := fs.String("pattern", "", "Pattern to test")
	fs.Parse(args)

	if *pattern == "" || fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: sentinel-rules test -kind <kind> -pattern <pattern> <value> [<value>...]\n")
		os.Exit(1)
	}

	os.Exit(runTest(os.Stdout, matcher.Kind(*kind), *pattern, fs.Args()))
}

func runBuiltinCmd(args []string) {
	fs := flag.NewFlagSet("builtin", flag.ExitOnError)
	domain := fs.String("domain", "", "Only print rules of this domain")
	fs.Parse(args)

	os.Exit(runBuiltin(os.Stdout, *domain))
}

func runValidate(out io.Writer, paths []string, verbose bool) int {
	var totalFiles, validFiles, invalidFiles int

	for _, path := range paths {
		files, err := collectYAMLFiles(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			invalidFiles++
			continue
		}
		for _, f := range files {
			totalFiles++
			if validateFile(out, f, verbose) {
				validFiles++
			} else {
				invalidFiles++
			}
		}
	}

	fmt.Fprintf(out, "\nResults: %d files checked, %d valid, %d invalid\n", totalFiles, validFiles, invalidFiles)

	if invalidFiles > 0 {
		return 1
	}
	return 0
}

// ruleFile is the parsed content of one rule file.
type ruleFile struct {
	literal   []rules.LiteralRule
	heuristic []rules.HeuristicRule
}

func (f ruleFile) count() int {
	return len(f.literal) + len(f.heuristic)
}

func parseFile(path string) (ruleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ruleFile{}, err
	}
	if strings.Contains(strings.ToLower(filepath.Base(path)), "heuristic") {
		list, err := rules.ParseHeuristicRules(data)
		return ruleFile{heuristic: list}, err
	}
	list, err := rules.ParseLiteralRules(data)
	return ruleFile{literal: list}, err
}

func validateFile(out io.Writer, path string, verbose bool) bool {
	rf, err := parseFile(path)
	if err != nil {
		fmt.Fprintf(out, "  FAIL  %s: %v\n", path, err)
		if ve, ok := rules.AsValidation(err); ok {
			fmt.Fprintf(out, "        part: %s\n", ve.Part)
		}
		return false
	}

	fmt.Fprintf(out, "  OK    %s (%d rule(s))\n", path, rf.count())

	if verbose {
		for _, r := range rf.literal {
			fmt.Fprintf(out, "        - [%s] %s (domain=%s, kind=%s, score=%d)\n",
				r.ID, r.Name, r.Domain, r.Kind, r.ThreatScore)
			fmt.Fprintf(out, "          pattern: %s\n", r.Pattern)
		}
		for _, r := range rf.heuristic {
			fmt.Fprintf(out, "        - [%s] %s (domain=%s, mode=%s, score=%d)\n",
				r.ID, r.Name, r.Domain, r.Mode, r.ThreatScore)
			for _, c := range r.Conditions {
				fmt.Fprintf(out, "          %s %s %s\n", c.Field, c.Operator, c.Value)
			}
		}
	}

	return true
}

func runList(out io.Writer, paths []string) int {
	for _, path := range paths {
		files, err := collectYAMLFiles(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
			continue
		}

		for _, f := range files {
			rf, err := parseFile(f)
			if err != nil {
				continue
			}
			for _, r := range rf.literal {
				fmt.Fprintf(out, "%-40s  %-10s  %-9s  score=%-3d  %s\n",
					r.ID, r.Domain, "literal", r.ThreatScore, r.Name)
			}
			for _, r := range rf.heuristic {
				fmt.Fprintf(out, "%-40s  %-10s  %-9s  score=%-3d  %s\n",
					r.ID, r.Domain, "heuristic", r.ThreatScore, r.Name)
			}
		}
	}
	return 0
}

func runTest(out io.Writer, kind matcher.Kind, pattern string, values []string) int {
	if !kind.Valid() {
		fmt.Fprintf(os.Stderr, "Error: unknown pattern kind %q\n", kind)
		return 1
	}
	p, err := matcher.Compile(kind, pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, v := range values {
		result := "no match"
		if p.Match(v) {
			result = "MATCH"
		}
		fmt.Fprintf(out, "%-9s  %s\n", result, v)
	}
	return 0
}

func runBuiltin(out io.Writer, domain string) int {
	list := catalog.Builtin()
	if domain != "" {
		d, err := vocab.ParseDomain(domain)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		filtered := list[:0]
		for _, r := range list {
			if r.Domain == d {
				filtered = append(filtered, r)
			}
		}
		list = filtered
	}

	data, err := rules.MarshalRuleSet(&rules.RuleSet{Version: rules.RuleSetVersion, Literal: list})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	out.Write(data)
	return 0
}

// collectYAMLFiles returns path itself when it is a file, or every YAML file
// below it when it is a directory.
func collectYAMLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}
