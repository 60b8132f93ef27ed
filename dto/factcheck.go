package dto

// Reference is a single supporting search hit for a claim.
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FactCheckResult pairs a claim with the references found for it. Results
// with zero references are never emitted by the engine.
type FactCheckResult struct {
	Claim      string      `json:"claim"`
	References []Reference `json:"references"`
}
