// cmd/tools/registry-check/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"sos-workers/internal/events"
	"sos-workers/pkg/registry"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	validatePath := validateCmd.String("path", "", "Path to a trigger registry file (default: built-in)")

	listPath := listCmd.String("path", "", "Path to a trigger registry file (default: built-in)")
	prefix := listCmd.String("prefix", "sos.alerts", "NATS subject prefix")

	checkPath := checkCmd.String("path", "", "Path to a trigger registry file (default: built-in)")
	event := checkCmd.String("event", "", "Event the payload belongs to (created, updated)")
	file := checkCmd.String("file", "", "Payload file to check, - for stdin")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		var reg *registry.TriggerRegistry
		if reg, err = load(*validatePath); err == nil {
			fmt.Printf("Registry validation passed. Found %d triggers.\n", len(reg.Triggers))
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		var reg *registry.TriggerRegistry
		if reg, err = load(*listPath); err == nil {
			list(os.Stdout, reg, *prefix)
		}

	case "check":
		checkCmd.Parse(os.Args[2:])
		if *event == "" || *file == "" {
			fmt.Println("Error: event and file are required for check.")
			checkCmd.Usage()
			os.Exit(1)
		}
		err = checkFile(*checkPath, registry.Event(*event), *file)
		if err == nil {
			fmt.Println("Payload accepted.")
		}

	case "help":
		help()
	default:
		help()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func load(path string) (*registry.TriggerRegistry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadRegistry(path)
}

// list prints every address a trigger is reachable on.
func list(w io.Writer, reg *registry.TriggerRegistry, prefix string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENT\tTASK TYPE\tSUBJECT\tROUTE")
	for _, t := range reg.Triggers {
		subject := t.Subject
		if prefix != "" {
			subject = prefix + "." + t.Subject
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\tPOST %s\n", t.ID, t.Event, t.TaskType, subject, t.Route)
	}
	tw.Flush()
}

func checkFile(path string, event registry.Event, file string) error {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return err
	}

	reg, err := load(path)
	if err != nil {
		return err
	}
	return check(reg, event, data)
}

// check decodes payload the way the workers do, without reacting to it.
func check(reg *registry.TriggerRegistry, event registry.Event, payload []byte) error {
	codec, err := events.NewCodec(reg)
	if err != nil {
		return err
	}
	switch event {
	case registry.EventCreated:
		_, err = codec.DecodeCreated(payload)
	case registry.EventUpdated:
		_, err = codec.DecodeUpdated(payload)
	default:
		err = fmt.Errorf("unknown event %q", event)
	}
	return err
}

func help() {
	fmt.Print(`
Usage: registry-check <command> [flags]

Commands:
  validate  Validate a trigger registry file
  list      Print the Zeebe task type, NATS subject and HTTP route of each trigger
  check     Check an event payload against its trigger schema
  help      Show this help message

Examples:
  registry-check validate -path pkg/registry/triggers.json
  registry-check list -prefix sos.alerts
  registry-check check -event updated -file testdata/cancel.json

Use 'registry-check <command> -h' for more information about a command.
` + "\n")
}
