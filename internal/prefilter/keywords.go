package prefilter

// industry is a named keyword category. Declaration order breaks ties.
type industry struct {
	name     string
	keywords []string
}

var industries = []industry{
	{
		name: "construction",
		keywords: []string{
			"construction", "contractor", "builder", "building", "renovation",
			"architect", "civil", "carpentry", "plumbing", "electrician",
			"roofing", "concrete", "real estate", "property", "developer",
		},
	},
	{
		name: "technology",
		keywords: []string{
			"software", "technology", "engineer", "developer", "saas", "cloud",
			"data", "devops", "startup", "programming", "cybersecurity", "tech",
		},
	},
	{
		name: "healthcare",
		keywords: []string{
			"health", "healthcare", "medical", "hospital", "clinic", "nurse",
			"physician", "doctor", "pharma", "biotech", "patient",
		},
	},
	{
		name: "finance",
		keywords: []string{
			"finance", "financial", "bank", "banking", "investment", "investor",
			"venture", "capital", "accounting", "fintech", "fund", "insurance",
		},
	},
	{
		name: "education",
		keywords: []string{
			"education", "school", "university", "teacher", "professor",
			"academic", "edtech", "training", "curriculum", "college",
		},
	},
	{
		name: "marketing",
		keywords: []string{
			"marketing", "brand", "advertising", "seo", "content", "social media",
			"growth", "campaign", "communications", "public relations",
		},
	},
	{
		name: "sales",
		keywords: []string{
			"sales", "account executive", "business development", "revenue",
			"partnerships", "channel", "retail", "customer success",
		},
	},
}

var roleKeywords = []string{
	"manager", "director", "lead", "senior", "specialist",
	"consultant", "contractor", "independent", "founder", "owner",
}

var domainKeywords = []string{
	"project", "operations", "strategy", "business", "management",
	"development", "engineering", "advisor",
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "who": {}, "are": {},
	"that": {}, "this": {}, "from": {}, "have": {}, "has": {}, "was": {},
	"were": {}, "will": {}, "would": {}, "can": {}, "could": {}, "should": {},
	"about": {}, "into": {}, "our": {}, "your": {}, "their": {}, "them": {},
	"they": {}, "you": {}, "want": {}, "need": {}, "looking": {}, "find": {},
	"some": {}, "any": {}, "all": {}, "more": {}, "most": {}, "other": {},
	"such": {}, "than": {}, "then": {}, "there": {}, "these": {}, "those": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "also": {},
	"help": {}, "like": {}, "people": {}, "someone": {}, "contacts": {},
}
