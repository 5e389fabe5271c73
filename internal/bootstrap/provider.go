package bootstrap

import (
	"context"
	"sync"

	"github.com/turtacn/OpenAD-Plugins/internal/application/deepsearch"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/session"
)

// SessionServices serves the RXN and Deep Search services of one
// long-lived session to concurrent callers. Logins happen on first use and
// are reused while valid.
type SessionServices struct {
	infra  *Infrastructure
	sess   *session.Session
	logger logging.Logger

	mu sync.Mutex
}

// NewSessionServices binds infra to one interactive session. Logins happen
// lazily, the first time a command needs RXN or Deep Search.
func NewSessionServices(infra *Infrastructure, sess *session.Session, log logging.Logger) *SessionServices {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &SessionServices{infra: infra, sess: sess, logger: log}
}

// Session returns the session the services were built for.
func (p *SessionServices) Session() *session.Session { return p.sess }

// Prediction logs in to RXN when needed and returns the prediction
// services bound to the workspace project.
func (p *SessionServices) Prediction(ctx context.Context) (*PredictionServices, error) {
	p.mu.Lock()
	tk, err := p.sess.LoginRXN(ctx)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.infra.NewPredictionServices(PredictionDeps{
		Workspace:    p.sess.Workspace,
		WorkspaceDir: p.sess.WorkspaceDir,
		API:          tk.Client,
	}, p.logger), nil
}

// DeepSearch logs in to Deep Search when the token is missing or expired.
// Large results are fetched without confirmation.
func (p *SessionServices) DeepSearch(ctx context.Context) (*deepsearch.Service, error) {
	p.mu.Lock()
	tk, err := p.sess.LoginDeepSearch(ctx)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.infra.NewDeepSearchService(DeepSearchDeps{
		Workspace: p.sess.Workspace,
		Remote:    tk.Client,
		Columns:   p.sess.Sources(),
	}, p.logger), nil
}
