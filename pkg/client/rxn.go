package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultRXNHost is used when credentials leave the host blank.
const DefaultRXNHost = "https://rxn.app.accelerate.science"

const rxnAPIPrefix = "/rxn/api/api/v1"

// RXNClient talks to the RXN prediction API. All prediction calls are
// scoped to the current project.
type RXNClient struct {
	client    *Client
	projectID string
}

// NewRXNClient builds a client for host, falling back to DefaultRXNHost.
func NewRXNClient(host, apiKey string, opts ...Option) (*RXNClient, error) {
	if strings.TrimSpace(host) == "" {
		host = DefaultRXNHost
	}
	c, err := NewClient(host, apiKey, append([]Option{withAuth(AuthRawKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &RXNClient{client: c}, nil
}

func (r *RXNClient) Host() string {
	return r.client.BaseURL()
}

// SetProject sets the project used by later submissions.
func (r *RXNClient) SetProject(id string) {
	r.projectID = id
}

func (r *RXNClient) ProjectID() string {
	return r.projectID
}

// Envelope is the {"response": {"payload": ...}} wrapper used by most RXN routes.
type Envelope[T any] struct {
	Response struct {
		Payload T `json:"payload"`
	} `json:"response"`
}

// User is the account behind the API key.
type User struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Project is an RXN project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelVersion is one released version of an RXN model family.
type ModelVersion struct {
	Name string `json:"name"`
}

// TaskResponse answers a batch submission.
type TaskResponse struct {
	TaskID string `json:"task_id"`
}

// BatchResults is the poll answer for a batch task. Predictions is empty
// while the task is still running.
type BatchResults struct {
	Predictions []map[string]interface{} `json:"predictions"`
	TaskStatus  string                   `json:"task_status"`
	Error       string                   `json:"error,omitempty"`
}

// RetroRequest mirrors the automatic retrosynthesis knobs.
type RetroRequest struct {
	Product                      string  `json:"product"`
	AvailabilityPricingThreshold int     `json:"availability_pricing_threshold"`
	AvailableSmiles              string  `json:"available_smiles,omitempty"`
	ExcludeSmiles                string  `json:"exclude_smiles,omitempty"`
	ExcludeSubstructures         string  `json:"exclude_substructures,omitempty"`
	ExcludeTargetMolecule        bool    `json:"exclude_target_molecule"`
	FAP                          float64 `json:"fap"`
	MaxSteps                     int     `json:"max_steps"`
	NBeams                       int     `json:"nbeams"`
	PruningSteps                 int     `json:"pruning_steps"`
	AIModel                      string  `json:"ai_model"`
	ProjectID                    string  `json:"project_id,omitempty"`
}

// RetroSubmission answers a retrosynthesis launch.
type RetroSubmission struct {
	PredictionID string `json:"prediction_id"`
	Response     struct {
		Payload map[string]interface{} `json:"payload"`
	} `json:"response"`
}

// ErrorMessage returns the service-reported failure, if any.
func (s *RetroSubmission) ErrorMessage() string {
	if s == nil || s.Response.Payload == nil {
		return ""
	}
	msg, _ := s.Response.Payload["errorMessage"].(string)
	return msg
}

// RetroTree is one node of a retrosynthetic path.
type RetroTree struct {
	Smiles     string       `json:"smiles"`
	Confidence float64      `json:"confidence"`
	Children   []*RetroTree `json:"children"`
}

// RetroResults is one poll of a retrosynthesis run. Paths are set once
// Status is SUCCESS.
type RetroResults struct {
	Status              string       `json:"status"`
	RetrosyntheticPaths []*RetroTree `json:"retrosynthetic_paths"`
}

type ActionsResponse struct {
	Actions []string `json:"actions"`
}

// CurrentUser checks the API key.
func (r *RXNClient) CurrentUser(ctx context.Context) (*User, error) {
	var env Envelope[User]
	if err := r.client.get(ctx, rxnAPIPrefix+"/users/current", &env); err != nil {
		return nil, err
	}
	return &env.Response.Payload, nil
}

// ListProjects returns up to size projects.
func (r *RXNClient) ListProjects(ctx context.Context, size int) ([]Project, error) {
	var env Envelope[struct {
		Content []Project `json:"content"`
	}]
	path := fmt.Sprintf("%s/projects?size=%d", rxnAPIPrefix, size)
	if err := r.client.get(ctx, path, &env); err != nil {
		return nil, err
	}
	return env.Response.Payload.Content, nil
}

// CreateProject creates a project and returns it with its id.
func (r *RXNClient) CreateProject(ctx context.Context, name string) (*Project, error) {
	var env Envelope[Project]
	if err := r.client.post(ctx, rxnAPIPrefix+"/projects", map[string]string{"name": name}, &env); err != nil {
		return nil, err
	}
	if env.Response.Payload.ID == "" {
		return nil, fmt.Errorf("create project %q: empty response", name)
	}
	return &env.Response.Payload, nil
}

// ListModels returns model family -> versions.
func (r *RXNClient) ListModels(ctx context.Context) (map[string][]ModelVersion, error) {
	var env Envelope[map[string][]ModelVersion]
	if err := r.client.get(ctx, rxnAPIPrefix+"/ai-models", &env); err != nil {
		return nil, err
	}
	return env.Response.Payload, nil
}

// PredictReactionBatch submits reactions to the current project. The
// returned task id is polled with GetReactionBatchResults.
func (r *RXNClient) PredictReactionBatch(ctx context.Context, reactions []string, model string) (*TaskResponse, error) {
	body := map[string]interface{}{"rxns": reactions, "ai_model": model, "project_id": r.projectID}
	var out TaskResponse
	if err := r.client.post(ctx, rxnAPIPrefix+"/predictions/pr-batch", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictReactionBatchTopN submits reactant lists and asks for topn
// products each.
func (r *RXNClient) PredictReactionBatchTopN(ctx context.Context, reactions [][]string, topn int, model string) (*TaskResponse, error) {
	body := map[string]interface{}{"rxns": reactions, "topn": topn, "ai_model": model, "project_id": r.projectID}
	var out TaskResponse
	if err := r.client.post(ctx, rxnAPIPrefix+"/predictions/pr-batch-topn", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReactionBatchResults polls a batch task once.
func (r *RXNClient) GetReactionBatchResults(ctx context.Context, taskID string, topn bool) (*BatchResults, error) {
	route := "pr-batch"
	if topn {
		route = "pr-batch-topn"
	}
	var out BatchResults
	path := fmt.Sprintf("%s/predictions/%s/%s", rxnAPIPrefix, route, url.PathEscape(taskID))
	if err := r.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictRetrosynthesis starts a retrosynthesis run, in the current
// project unless req names one.
func (r *RXNClient) PredictRetrosynthesis(ctx context.Context, req RetroRequest) (*RetroSubmission, error) {
	if req.ProjectID == "" {
		req.ProjectID = r.projectID
	}
	var out RetroSubmission
	if err := r.client.post(ctx, rxnAPIPrefix+"/retrosynthesis/rs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRetrosynthesisResults polls a retrosynthesis run once.
func (r *RXNClient) GetRetrosynthesisResults(ctx context.Context, predictionID string) (*RetroResults, error) {
	var out RetroResults
	path := fmt.Sprintf("%s/retrosynthesis/%s", rxnAPIPrefix, url.PathEscape(predictionID))
	if err := r.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParagraphToActions interprets an experimental procedure.
func (r *RXNClient) ParagraphToActions(ctx context.Context, paragraph string) ([]string, error) {
	var out ActionsResponse
	if err := r.client.post(ctx, rxnAPIPrefix+"/paragraph-actions", map[string]string{"paragraph": paragraph}, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}
