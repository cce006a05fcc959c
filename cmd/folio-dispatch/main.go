// Command folio-dispatch sends one folio command through the offline bridge and prints the result.
//
//	folio-dispatch -ns folio -method postAdjustment -path /api/folios/{id}/adjustments \
//	    -entity folio_id={id} -payload '{"action_type":"write_off",...}'
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/waspershola/hospitech-nexus-sub005/internal/config"
	"github.com/waspershola/hospitech-nexus-sub005/internal/dispatch"
)

type entityFlags map[string]string

func (e entityFlags) String() string {
	parts := make([]string, 0, len(e))
	for k, v := range e {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (e entityFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("entity must be key=value, got %q", v)
	}
	e[k] = val
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	cfg := config.LoadClient()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fs := flag.NewFlagSet("folio-dispatch", flag.ContinueOnError)
	ns := fs.String("ns", "folio", "local API namespace")
	method := fs.String("method", "", "local API method")
	path := fs.String("path", "", "remote API path")
	payload := fs.String("payload", "", "JSON payload; - reads stdin")
	id := fs.String("id", "", "command id, defaults to a new UUID")
	token := fs.String("token", os.Getenv("FOLIO_API_TOKEN"), "bearer token for the remote API")
	local := fs.String("local", cfg.LocalAPIURL, "local API base URL; empty means no local host")
	remote := fs.String("remote", cfg.RemoteAPIURL, "remote API base URL")
	journal := fs.String("journal", cfg.JournalPath, "journal file for locally executed commands")
	entities := entityFlags{}
	fs.Var(entities, "entity", "entity id as key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	body := []byte(*payload)
	if *payload == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			logger.Error("read payload", "err", err)
			return 1
		}
		body = raw
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		logger.Error("payload is not valid JSON")
		return 2
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	bridge := &dispatch.Bridge{
		Remote:  dispatch.NewRemoteExecutor(*remote, *token, cfg.DispatchTimeout),
		Journal: dispatch.NewFileJournal(*journal),
		Logger:  logger,
	}
	if *local != "" {
		bridge.Local = dispatch.NewLocalExecutor(*local, &http.Client{Timeout: cfg.DispatchTimeout}, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.DispatchTimeout)
	defer cancel()

	res := bridge.Execute(ctx, dispatch.Command{
		ID:        *id,
		Namespace: *ns,
		Method:    *method,
		Path:      *path,
		EntityIDs: entities,
		Payload:   body,
	})

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("encode result", "err", err)
		return 1
	}
	if !res.OK() {
		return 1
	}
	return 0
}
