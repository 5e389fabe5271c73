package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/OpenAD-Plugins/internal/application/reporting"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/session"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// fakeRXN answers the RXN routes the CLI reaches without a prediction.
type fakeRXN struct {
	server     *httptest.Server
	paragraphs atomic.Int32
}

func newFakeRXN(t *testing.T) *fakeRXN {
	f := &fakeRXN{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rxn/api/api/v1/users/current", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "rxn-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"response":{"payload":{"email":"chemist@example.com","username":"chemist"}}}`))
	})
	mux.HandleFunc("/rxn/api/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"payload":{"id":"proj-42","name":"LAB"}}}`))
	})
	mux.HandleFunc("/rxn/api/api/v1/ai-models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"payload":{"forward":[{"name":"2020-08-10"},{"name":"2020-07-01"}],"retro":[{"name":"2020-07-01"}]}}}`))
	})
	mux.HandleFunc("/rxn/api/api/v1/paragraph-actions", func(w http.ResponseWriter, r *http.Request) {
		f.paragraphs.Add(1)
		_, _ = w.Write([]byte(`{"actions":["ADD water","STIR for 2 h"]}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// newFakeDeepSearch serves a token endpoint and a fixed collection listing.
func newFakeDeepSearch(t *testing.T) *httptest.Server {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/cps/user/v1/user/token", func(w http.ResponseWriter, r *http.Request) {
		if user, key, ok := r.BasicAuth(); !ok || user != "jane@example.com" || key != "ds-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"` + token + `"}`))
	})
	mux.HandleFunc("/api/cps/public/v2/elastic/collections", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"name":"PubChem","documents":118000000,"source":{"elastic_id":"default","index_key":"pubchem"},
			 "metadata":{"domain":["Chemistry"],"type":"Record","created":"2023-03-14T00:00:00Z","description":"Open chemistry database"}},
			{"name":"USPTO patents","documents":4321,"source":{"elastic_id":"default","index_key":"patent-uspto"},
			 "metadata":{"domain":["Patents"],"type":"Document","created":"2022-01-05T00:00:00Z"}},
			{"name":"arXiv abstracts","documents":2100000,"source":{"elastic_id":"default","index_key":"arxiv-abstract"},
			 "metadata":{"domain":["Scientific Literature"],"type":"Document","created":"2021-06-01T00:00:00Z"}}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type CLITestSuite struct {
	suite.Suite
	home   string
	config string
	rxn    *fakeRXN
}

func TestCLITestSuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) SetupTest() {
	s.home = s.T().TempDir()
	s.rxn = newFakeRXN(s.T())
	s.config = filepath.Join(s.home, "openad.yaml")
	yaml := "workspace:\n" +
		"  name: lab\n" +
		"  home_dir: " + s.home + "\n" +
		"display:\n" +
		"  mode: terminal\n" +
		"log:\n" +
		"  level: error\n"
	s.Require().NoError(os.WriteFile(s.config, []byte(yaml), 0o600))
}

func (s *CLITestSuite) writeRXNCredentials(key string) {
	s.Require().NoError(session.WriteCredentials(filepath.Join(s.home, session.RXNCredentialsFile), &session.Credentials{
		Host: s.rxn.server.URL,
		Auth: session.Auth{APIKey: key},
	}))
}

func (s *CLITestSuite) writeDSCredentials() {
	srv := newFakeDeepSearch(s.T())
	s.Require().NoError(session.WriteCredentials(filepath.Join(s.home, session.DSCredentialsFile), &session.Credentials{
		Host: srv.URL,
		Auth: session.Auth{Username: "jane@example.com", APIKey: "ds-key"},
	}))
}

func (s *CLITestSuite) run(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", s.config, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (s *CLITestSuite) TestRXNLogin() {
	s.writeRXNCredentials("rxn-key")

	out, _, err := s.run("", "rxn", "login")
	s.Require().NoError(err)
	s.Equal("OK: logged in to RXN as chemist@example.com, project LAB (proj-42)\n", out)

	id, ok := session.NewProjectRegistry(s.home).Lookup("LAB")
	s.True(ok)
	s.Equal("proj-42", id)
}

func (s *CLITestSuite) TestRXNLogin_PromptsForMissingCredentials() {
	out, stderr, err := s.run(s.rxn.server.URL+"\nrxn-key\n", "rxn", "login")
	s.Require().NoError(err)
	s.Contains(out, "logged in to RXN")
	s.Contains(stderr, "API key: ")

	creds, err := session.LoadCredentials(filepath.Join(s.home, session.RXNCredentialsFile))
	s.Require().NoError(err)
	s.Equal("rxn-key", creds.Auth.APIKey)
}

func (s *CLITestSuite) TestRXNLogin_NoCredentialsAndNoAnswer() {
	_, _, err := s.run("", "rxn", "login")
	s.Require().Error(err)
	s.True(errors.IsCode(err, errors.ErrCodeRXNNotLoggedIn))
}

func (s *CLITestSuite) TestRXNModels_JSON() {
	s.writeRXNCredentials("rxn-key")

	out, _, err := s.run("", "-o", "json", "rxn", "models")
	s.Require().NoError(err)
	s.JSONEq(`[
		{"model":"forward","versions":["2020-08-10","2020-07-01"]},
		{"model":"retro","versions":["2020-07-01"]}
	]`, out)
}

func (s *CLITestSuite) TestRXNModels_SaveAs() {
	s.writeRXNCredentials("rxn-key")

	out, stderr, err := s.run("", "rxn", "models", "--save-as", "models")
	s.Require().NoError(err)
	s.Contains(out, "forward")
	s.Contains(out, "2 rows")
	s.Contains(stderr, "Saved to ")

	data, err := os.ReadFile(filepath.Join(s.home, "lab", "models.csv"))
	s.Require().NoError(err)
	s.True(strings.HasPrefix(string(data), "Model,Versions\n"), string(data))
}

func (s *CLITestSuite) TestRXNInterpret() {
	s.writeRXNCredentials("rxn-key")

	out, _, err := s.run("", "-o", "json", "rxn", "interpret", "Add", "water", "and", "stir.")
	s.Require().NoError(err)

	var recipe struct {
		Source  string   `json:"source"`
		Actions []string `json:"actions"`
	}
	s.Require().NoError(json.Unmarshal([]byte(out), &recipe))
	s.Equal("paragraph", recipe.Source)
	s.Equal([]string{"ADD water", "STIR for 2 h"}, recipe.Actions)
	s.Equal(int32(1), s.rxn.paragraphs.Load())
}

func (s *CLITestSuite) TestRXNClearCache_NeedsNoLogin() {
	out, _, err := s.run("", "rxn", "clear-cache")
	s.Require().NoError(err)
	s.Equal("OK: removed 0 cached results\n", out)
}

func (s *CLITestSuite) TestResetLogin() {
	s.writeRXNCredentials("rxn-key")

	out, _, err := s.run("", "rxn", "reset-login")
	s.Require().NoError(err)
	s.Equal("OK: credentials removed for RXN\n", out)

	out, _, err = s.run("", "ds", "reset-login")
	s.Require().NoError(err)
	s.Equal("OK: no credentials stored for DS4SD\n", out)

	_, _, err = s.run("", "rxn", "reset-login", "chemspider")
	s.True(errors.IsValidation(err))
}

func (s *CLITestSuite) TestPredictReaction_InvalidUsingFailsBeforeLogin() {
	_, _, err := s.run("", "rxn", "predict", "reaction", "CCO.CC", "--using", "colour=blue")
	s.Require().Error(err)
	s.False(errors.IsCode(err, errors.ErrCodeRXNNotLoggedIn))
}

func (s *CLITestSuite) TestPredictReaction_UnsupportedFile() {
	_, _, err := s.run("", "rxn", "predict", "reaction", "--file", "reactions.xlsx")
	s.True(errors.IsCode(err, errors.ErrCodeRXNInputSourceFailed))
}

func (s *CLITestSuite) TestDSSearch_InvalidShow() {
	_, _, err := s.run("", "ds", "search", "ibuprofen", "--show", "everything")
	s.True(errors.IsValidation(err))
}

func (s *CLITestSuite) TestDSCollections_DomainFilter() {
	s.writeDSCredentials()

	out, _, err := s.run("", "-o", "json", "ds", "collections", "--domain", "chem", "--domain", "PATENT")
	s.Require().NoError(err)
	var cols []client.Collection
	s.Require().NoError(json.Unmarshal([]byte(out), &cols))
	s.Require().Len(cols, 2)
	s.Equal("PubChem", cols[0].Name)
	s.Equal("USPTO patents", cols[1].Name)

	_, _, err = s.run("", "ds", "collections", "--domain", "Business Insights")
	s.True(errors.IsCode(err, errors.ErrCodeDSNoResults))
}

func (s *CLITestSuite) TestDSCollectionDetails() {
	s.writeDSCredentials()

	out, _, err := s.run("", "ds", "collection", "pubchem")
	s.Require().NoError(err)
	s.Contains(out, "Open chemistry database\n")
	s.Contains(out, "Name     PubChem\n")
	s.Contains(out, "Entries  118,000,000\n")
	s.Contains(out, "Created  March 14, 2023\n")

	out, _, err = s.run("", "-o", "json", "ds", "collection", "USPTO", "patents")
	s.Require().NoError(err)
	var col client.Collection
	s.Require().NoError(json.Unmarshal([]byte(out), &col))
	s.Equal("patent-uspto", col.Source.IndexKey)

	_, _, err = s.run("", "ds", "collection", "chembl")
	s.True(errors.IsCode(err, errors.ErrCodeDSCollectionNotFound))
}

func (s *CLITestSuite) TestUnknownOutputFormat() {
	_, _, err := s.run("", "-o", "xml", "rxn", "clear-cache")
	s.True(errors.IsValidation(err))
}

func (s *CLITestSuite) TestWorkspaceOverride() {
	s.writeRXNCredentials("rxn-key")

	_, _, err := s.run("", "--workspace", "other", "rxn", "models", "--save-as", "models.csv")
	s.Require().NoError(err)
	s.FileExists(filepath.Join(s.home, "other", "models.csv"))
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "openad", cmd.Use)

	for _, name := range []string{"config", "log-level", "output", "workspace", "no-color", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["rxn"])
	assert.True(t, names["ds"])
	assert.True(t, names["version"])

	ds, _, err := cmd.Find([]string{"ds"})
	require.NoError(t, err)
	var dsNames []string
	for _, sub := range ds.Commands() {
		dsNames = append(dsNames, sub.Name())
	}
	assert.ElementsMatch(t, []string{
		"login", "reset-login", "collections", "collection", "domains", "containing", "search",
		"similar", "substructure", "patents", "molecules-in-patents",
	}, dsNames)
}

func TestVersionCommand_NeedsNoConfig(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", "/does/not/exist.yaml", "version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "openad dev")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	tbl := command.Table{Columns: []string{"Name"}, Rows: [][]string{{"pubchem"}}}
	tests := []struct {
		name   string
		format reporting.Format
		res    Result
		want   string
	}{
		{"text prefers text", reporting.FormatText, Result{Text: "hello", Table: &tbl}, "hello\n"},
		{"json uses data", reporting.FormatJSON, Result{Text: "hello", Data: map[string]int{"n": 1}}, "{\n  \"n\": 1\n}\n"},
		{"json falls back to message", reporting.FormatJSON, Result{Text: "hello"}, "{\n  \"message\": \"hello\"\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&out)
			cc := &CLIContext{Format: tt.format}
			require.NoError(t, cc.PrintResult(cmd, tt.res))
			assert.Equal(t, tt.want, out.String())
		})
	}

	t.Run("table renders the table", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&out)
		cc := &CLIContext{Format: reporting.FormatTable}
		require.NoError(t, cc.PrintResult(cmd, Result{Text: "hello", Table: &tbl}))
		assert.Contains(t, out.String(), "pubchem")
		assert.Contains(t, out.String(), "1 rows")
		assert.NotContains(t, out.String(), "hello")
	})
}

func TestSelectColumns(t *testing.T) {
	tbl := command.Table{
		Columns: []string{"A", "B", "C"},
		Rows:    [][]string{{"1", "2", "3"}, {"4", "5", "6"}},
	}
	got := selectColumns(tbl, []string{"C", "A", "Z"})
	assert.Equal(t, []string{"C", "A"}, got.Columns)
	assert.Equal(t, [][]string{{"3", "1"}, {"6", "4"}}, got.Rows)
}

func TestLinePrompter(t *testing.T) {
	var errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("alice\r\nyes\nlast"))
	cmd.SetErr(&errOut)
	p := newPrompter(cmd)

	v, err := p.Ask("Username", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
	assert.True(t, p.confirm("Continue?"))

	v, err = p.Ask("API key", true)
	require.NoError(t, err)
	assert.Equal(t, "last", v)

	_, err = p.Ask("Host", false)
	assert.Error(t, err)
	assert.False(t, p.confirm("Again?"))
	assert.Equal(t, "Username: Continue? [y/N]: API key: Host: Again? [y/N]: ", errOut.String())
}
