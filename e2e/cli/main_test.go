//go:build e2e

package cli

import (
	"cmp"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rogpeppe/go-internal/testscript"
)

func testServer() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /conf/app.properties", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "include=common.properties")
		fmt.Fprintln(w, "name=remote")
	})
	mux.HandleFunc("GET /conf/common.properties", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "name=common")
		fmt.Fprintln(w, "region=eu")
	})
	mux.HandleFunc("GET /private/app.properties", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer e2e-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintln(w, "secret=true")
	})
	return mux
}

func TestScript(t *testing.T) {
	gitcon := cmp.Or(os.Getenv("GITCON"), "gitcon")
	srv := httptest.NewServer(testServer())
	t.Cleanup(srv.Close)
	endpoint := srv.Listener.Addr().String()

	testscript.Run(t, testscript.Params{
		Dir: ".",
		Setup: func(e *testscript.Env) error {
			e.Vars = append(e.Vars,
				"HTTP_ENDPOINT="+endpoint,
				"GITCON="+gitcon,
			)
			for _, kv := range os.Environ() {
				if strings.HasPrefix(kv, "E2E_") {
					e.Vars = append(e.Vars, kv)
				}
			}
			return nil
		},
		Condition: func(cond string) (bool, error) {
			args := strings.Split(cond, ":")
			name := args[0]
			switch name {
			case "env":
				if len(args) < 2 {
					return false, fmt.Errorf("syntax: [env:SOME_VAR]")
				}
				return os.Getenv(args[1]) != "", nil
			default:
				return false, fmt.Errorf("unknown condition %s", name)
			}
		},
		Cmds: map[string]func(*testscript.TestScript, bool, []string){
			"retry": retryCmd,
		},
		// NB: To quickly update expectations in txtar files, try re-running the tests with
		// E2E_UPDATE=y, for example:
		//   E2E_UPDATE=y go test -tags e2e ./e2e/cli -run TestScript/props_include -v -count=1
		UpdateScripts: os.Getenv("E2E_UPDATE") != "",
	})
}

// retryCmd implements a builtin command that waits until a command is successful
// by retrying up to 5 times with exponential delay starting with 2 seconds.
func retryCmd(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) == 0 {
		ts.Fatalf("usage: retry command [args...]")
	}

	const maxRetries = 5
	const initialDelay = 2 * time.Second

	var lastErr error
	for i := range maxRetries {
		if i > 0 {
			delay := initialDelay * (1 << (i - 1))
			ts.Logf("retrying in %v (attempt %d/%d)", delay, i+1, maxRetries)
			time.Sleep(delay)
		}

		err := ts.Exec(args[0], args[1:]...)
		if err == nil {
			if neg {
				ts.Fatalf("unexpected command success")
			}
			return
		}
		lastErr = err
	}

	if neg {
		return
	}

	ts.Fatalf("command failed after %d attempts: %v", maxRetries, lastErr)
}
