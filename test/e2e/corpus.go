package e2e

import "strings"

// Policy is a plain-text policy document with form feeds between pages.
type Policy struct {
	Filename string
	Pages    []string
}

// Content returns the document bytes as uploaded.
func (p Policy) Content() []byte {
	return []byte(strings.Join(p.Pages, "\f"))
}

// Scenario is a claim with the page and source each cited quote must land on.
type Scenario struct {
	Claim     string
	Decision  string
	Citations []ExpectedCitation
}

// ExpectedCitation locates one quote.
type ExpectedCitation struct {
	Quote    string
	Page     int
	Filename string
}

// HomePolicy is a four page homeowners policy.
var HomePolicy = Policy{
	Filename: "home-policy.txt",
	Pages: []string{
		"HOMEOWNERS POLICY\nDeclarations\nPolicy period: one year",
		"SECTION I - PROPERTY COVERAGES\nWe cover sudden and accidental discharge of water from a plumbing system.\nWind and hail damage to the dwelling is covered.",
		"SECTION I - EXCLUSIONS\nWe do not cover Flood Damage, including surface water and overflow of a body of water.\nWe do not cover wear and tear.",
		"CONDITIONS\nYou must give prompt notice of loss.\nFlood damage claims require an inspection.",
	},
}

// AutoPolicy is a two page auto policy.
var AutoPolicy = Policy{
	Filename: "auto-policy.txt",
	Pages: []string{
		"PERSONAL AUTO POLICY\nPart A - Liability Coverage",
		"Part D - Coverage for Damage to Your Auto\nCollision coverage applies after the deductible.\nHail damage to a covered auto is paid under comprehensive coverage.",
	},
}

// Rules drives the in-process backend.
var Rules = []Rule{
	{
		Keyword:   "flood",
		Decision:  "likely-excluded",
		RiskLevel: "high",
		Rationale: "Flood damage is excluded under Section I.",
		Quotes:    []string{"flood damage", "surface water"},
	},
	{
		Keyword:   "pipe",
		Decision:  "likely-covered",
		RiskLevel: "low",
		Rationale: "Sudden discharge from plumbing is a covered peril.",
		Quotes:    []string{"discharge of water from a plumbing system"},
	},
	{
		Keyword:   "collision",
		Decision:  "likely-covered",
		RiskLevel: "medium",
		Rationale: "Collision coverage applies after the deductible.",
		Quotes:    []string{"Collision coverage"},
	},
}

// Scenarios lists claims with their expected citations once both policies
// are ingested, home first.
var Scenarios = []Scenario{
	{
		Claim:    "Basement flooded after the river overflowed.",
		Decision: "likely-excluded",
		Citations: []ExpectedCitation{
			{Quote: "flood damage", Page: 3, Filename: HomePolicy.Filename},
			{Quote: "surface water", Page: 3, Filename: HomePolicy.Filename},
		},
	},
	{
		Claim:    "A pipe burst in the kitchen wall.",
		Decision: "likely-covered",
		Citations: []ExpectedCitation{
			{Quote: "discharge of water from a plumbing system", Page: 2, Filename: HomePolicy.Filename},
		},
	},
	{
		Claim:    "Rear-ended in a collision on the highway.",
		Decision: "likely-covered",
		Citations: []ExpectedCitation{
			{Quote: "Collision coverage", Page: 2, Filename: AutoPolicy.Filename},
		},
	},
}
