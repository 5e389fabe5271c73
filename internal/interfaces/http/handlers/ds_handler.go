package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/OpenAD-Plugins/internal/application/deepsearch"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

// DeepSearchProvider returns the Deep Search service of a logged-in session.
type DeepSearchProvider interface {
	DeepSearch(ctx context.Context) (*deepsearch.Service, error)
}

// DeepSearchHandler exposes collection listing, search and the chemistry
// knowledge graph queries.
type DeepSearchHandler struct {
	provider          DeepSearchProvider
	defaultCollection string
	logger            logging.Logger
}

// NewDeepSearchHandler searches defaultCollection when a request names no
// collection.
func NewDeepSearchHandler(provider DeepSearchProvider, defaultCollection string, log logging.Logger) *DeepSearchHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &DeepSearchHandler{provider: provider, defaultCollection: defaultCollection, logger: log.Named("ds_handler")}
}

// SearchRequest is the body of the collection search routes.
type SearchRequest struct {
	Query        string   `json:"query"`
	Collection   string   `json:"collection,omitempty"`
	Using        string   `json:"using,omitempty"`
	Show         []string `json:"show,omitempty"`
	EstimateOnly bool     `json:"estimate_only,omitempty"`
}

type MoleculesInPatentsRequest struct {
	PatentIDs []string `json:"patent_ids"`
}

// CollectionsResponse carries the raw collections with their rendered table.
type CollectionsResponse struct {
	Collections interface{}   `json:"collections"`
	Table       command.Table `json:"table"`
}

// service resolves the Deep Search service or answers with the error.
func (h *DeepSearchHandler) service(w http.ResponseWriter, r *http.Request) (*deepsearch.Service, bool) {
	svc, err := h.provider.DeepSearch(r.Context())
	if err != nil {
		writeAppError(w, err)
		return nil, false
	}
	return svc, true
}

// ListCollections handles GET /api/v1/ds/collections. Repeated domain
// parameters restrict the listing to those domains.
func (h *DeepSearchHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	cols, err := svc.ListCollections(r.Context(), r.URL.Query()["domain"]...)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionsResponse{Collections: cols, Table: deepsearch.CollectionsTable(cols)})
}

// CollectionDetails handles GET /api/v1/ds/collections/{collection}.
func (h *DeepSearchHandler) CollectionDetails(w http.ResponseWriter, r *http.Request) {
	cmd := command.DSCollectionDetails{Collection: chi.URLParam(r, "collection")}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	col, err := svc.CollectionDetails(r.Context(), cmd.Collection)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// ListDomains handles GET /api/v1/ds/domains.
func (h *DeepSearchHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	domains, err := svc.ListDomains(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}

// CollectionsContaining handles GET /api/v1/ds/collections/containing?q=.
func (h *DeepSearchHandler) CollectionsContaining(w http.ResponseWriter, r *http.Request) {
	cmd := command.DSCollectionsContaining{Query: r.URL.Query().Get("q")}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	matches, err := svc.CollectionsContaining(r.Context(), cmd.Query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// Search handles POST /api/v1/ds/search.
func (h *DeepSearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAppError(w, err)
		return
	}
	using, err := command.ParseUsing(body.Using)
	if err != nil {
		writeAppError(w, err)
		return
	}
	collection := body.Collection
	if collection == "" {
		collection = h.defaultCollection
	}
	cmd, err := command.NewDSSearchCollection(body.Query, collection, using)
	if err != nil {
		writeAppError(w, err)
		return
	}
	cmd.Show = body.Show
	cmd.EstimateOnly = body.EstimateOnly
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	res, err := svc.SearchCollection(r.Context(), cmd)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DeepSearchHandler) moleculeSearch(w http.ResponseWriter, r *http.Request, similar bool) {
	smiles := r.URL.Query().Get("smiles")
	var cmd command.Command = command.DSFindSubstructure{SMILES: smiles}
	if similar {
		cmd = command.DSFindSimilar{SMILES: smiles}
	}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	find := svc.FindSubstructure
	if similar {
		find = svc.FindSimilar
	}
	res, err := find(r.Context(), smiles)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FindSimilar handles GET /api/v1/ds/molecules/similar?smiles=.
func (h *DeepSearchHandler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	h.moleculeSearch(w, r, true)
}

// FindSubstructure handles GET /api/v1/ds/molecules/substructure?smiles=.
func (h *DeepSearchHandler) FindSubstructure(w http.ResponseWriter, r *http.Request) {
	h.moleculeSearch(w, r, false)
}

// PatentsContaining handles GET /api/v1/ds/patents?identifier=.
func (h *DeepSearchHandler) PatentsContaining(w http.ResponseWriter, r *http.Request) {
	cmd := command.DSPatentsContaining{Identifier: r.URL.Query().Get("identifier")}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	res, err := svc.PatentsContaining(r.Context(), cmd.Identifier)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MoleculesInPatents handles POST /api/v1/ds/patents/molecules.
func (h *DeepSearchHandler) MoleculesInPatents(w http.ResponseWriter, r *http.Request) {
	var body MoleculesInPatentsRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAppError(w, err)
		return
	}
	cmd := command.DSMoleculesInPatents{Source: command.FromList(body.PatentIDs)}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	res, err := svc.MoleculesInPatents(r.Context(), cmd.Source)
	if err != nil {
		writeAppError(w, err)
		return
	}
	h.logger.Debug("molecules in patents", logging.Int("patents", len(res.PatentIDs)))
	writeJSON(w, http.StatusOK, res)
}
