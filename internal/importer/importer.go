// Package importer loads contact exports into a session.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/candidate"
)

var (
	ErrEmptyFile = errors.New("csv file has no rows")
	ErrNoName    = errors.New("csv header has no name column")
)

// headerAliases maps normalized header names to row fields.
var headerAliases = map[string]string{
	"name":         "name",
	"full name":    "name",
	"first name":   "first_name",
	"firstname":    "first_name",
	"last name":    "last_name",
	"lastname":     "last_name",
	"surname":      "last_name",
	"title":        "title",
	"position":     "title",
	"job title":    "title",
	"headline":     "title",
	"company":      "company",
	"organization": "company",
	"organisation": "company",
	"employer":     "company",
	"location":     "location",
	"city":         "location",
	"region":       "location",
	"industry":     "industry",
	"summary":      "summary",
	"about":        "summary",
	"description":  "summary",
	"experience":   "experience",
	"education":    "education",
	"school":       "education",
	"skills":       "skills",
}

type row struct {
	Name       string `csv:"name"`
	FirstName  string `csv:"first_name"`
	LastName   string `csv:"last_name"`
	Title      string `csv:"title"`
	Company    string `csv:"company"`
	Location   string `csv:"location"`
	Industry   string `csv:"industry"`
	Summary    string `csv:"summary"`
	Experience string `csv:"experience"`
	Education  string `csv:"education"`
	Skills     string `csv:"skills"`
}

func (r row) fullName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

func (r row) candidate() *candidate.Candidate {
	return &candidate.Candidate{
		ID:         uuid.NewString(),
		Name:       r.fullName(),
		Title:      strings.TrimSpace(r.Title),
		Company:    strings.TrimSpace(r.Company),
		Location:   strings.TrimSpace(r.Location),
		Industry:   strings.TrimSpace(r.Industry),
		Summary:    strings.TrimSpace(r.Summary),
		Experience: strings.TrimSpace(r.Experience),
		Education:  strings.TrimSpace(r.Education),
		Skills:     splitSkills(r.Skills),
	}
}

func splitSkills(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// Parsed is the outcome of reading one file.
type Parsed struct {
	Candidates []*candidate.Candidate
	Rows       int
	// Skipped counts rows without a name.
	Skipped int
}

// Parse reads a CSV (or TSV when comma is '\t') export. Unknown columns are ignored.
func Parse(r io.Reader, comma rune) (Parsed, error) {
	reader := csv.NewReader(r)
	if comma != 0 {
		reader.Comma = comma
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Parsed{}, ErrEmptyFile
	}
	if err != nil {
		return Parsed{}, fmt.Errorf("read csv header: %w", err)
	}

	fields := make([]string, len(header))
	hasName := false
	for i, h := range header {
		fields[i] = headerAliases[normalizeHeader(h)]
		switch fields[i] {
		case "name", "first_name", "last_name":
			hasName = true
		}
	}
	if !hasName {
		return Parsed{}, ErrNoName
	}

	var decoded row
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &decoded,
		TagName:          "csv",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Parsed{}, err
	}

	var parsed Parsed
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv.ParseError already names the line
			return Parsed{}, fmt.Errorf("read csv: %w", err)
		}
		parsed.Rows++
		line, _ := reader.FieldPos(0)

		values := make(map[string]any, len(record))
		for i, value := range record {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			// the first column wins when several map to the same field
			if _, ok := values[fields[i]]; !ok {
				values[fields[i]] = value
			}
		}

		decoded = row{}
		if err := decoder.Decode(values); err != nil {
			return Parsed{}, fmt.Errorf("decode csv line %d: %w", line, err)
		}

		c := decoded.candidate()
		if c.Name == "" {
			parsed.Skipped++
			continue
		}
		parsed.Candidates = append(parsed.Candidates, c)
	}

	if parsed.Rows == 0 {
		return Parsed{}, ErrEmptyFile
	}

	return parsed, nil
}

// Upserter stores imported candidates.
type Upserter interface {
	UpsertCandidates(ctx context.Context, userID, sessionID string, candidates []*candidate.Candidate) (int, error)
}

type Importer struct {
	store  Upserter
	logger *zap.Logger
}

func New(store Upserter, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// Result reports an import. SessionID is generated when the caller gave none.
type Result struct {
	SessionID string `json:"session_id"`
	Rows      int    `json:"rows"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
}

func (i *Importer) Import(ctx context.Context, userID, sessionID string, r io.Reader, comma rune) (Result, error) {
	parsed, err := Parse(r, comma)
	if err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	imported, err := i.store.UpsertCandidates(ctx, userID, sessionID, parsed.Candidates)
	if err != nil {
		return Result{}, fmt.Errorf("store candidates: %w", err)
	}

	res := Result{
		SessionID: sessionID,
		Rows:      parsed.Rows,
		Imported:  imported,
		Skipped:   parsed.Rows - imported,
	}

	i.logger.Info("contacts imported",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("rows", res.Rows),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
	)

	return res, nil
}
