package reaction

// Provenance tags where a record's content came from.
type Provenance string

const (
	ProvenanceInvalid Provenance = "invalid"
	ProvenanceCached  Provenance = "from_cache"
	ProvenanceFresh   Provenance = "fresh"
)

// BatchClassification partitions a batch. Every input appears in exactly one
// of Invalid, Cached or ToSubmit; ToSubmit keeps first-occurrence order and
// holds each distinct input once.
type BatchClassification struct {
	Invalid  map[string][]string
	Cached   map[string]Payload
	ToSubmit []string
}

// NewBatchClassification returns an empty classification with its maps
// allocated.
func NewBatchClassification() *BatchClassification {
	return &BatchClassification{
		Invalid: make(map[string][]string),
		Cached:  make(map[string]Payload),
	}
}

// ProvenanceOf reports the partition holding input.
func (c *BatchClassification) ProvenanceOf(input string) Provenance {
	if _, ok := c.Invalid[input]; ok {
		return ProvenanceInvalid
	}
	if _, ok := c.Cached[input]; ok {
		return ProvenanceCached
	}
	return ProvenanceFresh
}

// NeedsSubmission is false when every input was invalid or cached.
func (c *BatchClassification) NeedsSubmission() bool {
	return len(c.ToSubmit) > 0
}

// Record is one reassembled result, aligned with the original input list.
type Record struct {
	Index            int        `json:"index"`
	Input            string     `json:"input"`
	Provenance       Provenance `json:"provenance"`
	InvalidFragments []string   `json:"invalid_fragments,omitempty"`
	Prediction       Payload    `json:"prediction,omitempty"`
}

// Fragments of the original input, as typed by the user.
func (r Record) Fragments() []string {
	return Fragments(r.Input)
}

// BatchResult is the outcome of a reaction prediction batch.
type BatchResult struct {
	BatchID string         `json:"batch_id"`
	JobID   string         `json:"job_id,omitempty"`
	Params  ReactionParams `json:"params"`
	Records []Record       `json:"records"`
	Invalid int            `json:"invalid"`
	Cached  int            `json:"cached"`
	Fresh   int            `json:"fresh"`
}

// Predictions returns the payload per record, nil for invalid inputs.
func (b *BatchResult) Predictions() []Payload {
	out := make([]Payload, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Prediction
	}
	return out
}
