package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/poiesic/protrieve/core"
	"github.com/poiesic/protrieve/search"
	"github.com/urfave/cli/v2"
)

type hitRow struct {
	ProteinID  string  `json:"protein_id"`
	Similarity float64 `json:"similarity"`
	ShortName  string  `json:"short_name"`
	Name       string  `json:"name"`
	Organism   string  `json:"organism"`
	TaxonID    string  `json:"taxon_id"`
	GeneName   string  `json:"gene_name"`
	Evidence   string  `json:"evidence"`
	Version    string  `json:"version"`
}

type enrichmentRow struct {
	GOID       string  `json:"go_id"`
	Ratio      float64 `json:"enrichment_ratio"`
	PValue     float64 `json:"p_value"`
	Name       string  `json:"name"`
	Namespace  string  `json:"namespace"`
	Definition string  `json:"definition"`
	IsA        string  `json:"is_a"`
	ProteinIDs string  `json:"proteins"`
}

type fusionRow struct {
	ProteinID string  `json:"protein_id"`
	Score     float64 `json:"score"`
	Vector    float64 `json:"vector"`
	Lexical   float64 `json:"lexical"`
	FullText  float64 `json:"fulltext"`
	Overlap   int     `json:"overlap"`
	Content   string  `json:"content,omitempty"`
}

type sequenceOutput struct {
	Hits       []hitRow        `json:"hits"`
	Enrichment []enrichmentRow `json:"enrichment,omitempty"`
}

func toHitRows(hits []core.ProteinHit) []hitRow {
	rows := make([]hitRow, len(hits))
	for i, h := range hits {
		rows[i] = hitRow{
			ProteinID:  h.ProteinID,
			Similarity: h.Similarity,
			ShortName:  h.ShortName,
			Name:       h.Name,
			Organism:   h.Organism,
			TaxonID:    h.TaxonID,
			GeneName:   h.GeneName,
			Evidence:   h.Evidence,
			Version:    h.Version,
		}
	}
	return rows
}

func toEnrichmentRows(records []core.EnrichmentRecord) []enrichmentRow {
	rows := make([]enrichmentRow, len(records))
	for i := range records {
		r := &records[i]
		rows[i] = enrichmentRow{
			GOID:       r.Term.ID,
			Ratio:      r.Ratio,
			PValue:     r.PValue,
			Name:       r.Term.Name,
			Namespace:  r.Term.Namespace,
			Definition: r.Term.Definition,
			IsA:        r.Term.IsA,
			ProteinIDs: r.JoinedProteinIDs(),
		}
	}
	return rows
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func writeHits(w io.Writer, rows []hitRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROTEIN\tSIMILARITY\tSHORT NAME\tNAME\tORGANISM\tTAXON\tGENE\tPE\tSV")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.4f\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ProteinID, r.Similarity, r.ShortName, r.Name, r.Organism, r.TaxonID, r.GeneName, r.Evidence, r.Version)
	}
	return tw.Flush()
}

func writeEnrichment(w io.Writer, rows []enrichmentRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GO ID\tRATIO\tP-VALUE\tNAME\tNAMESPACE\tIS A\tPROTEINS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.3f\t%.5f\t%s\t%s\t%s\t%s\n",
			r.GOID, r.Ratio, r.PValue, r.Name, r.Namespace, r.IsA, r.ProteinIDs)
	}
	return tw.Flush()
}

func writeFusion(w io.Writer, rows []fusionRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROTEIN\tSCORE\tVECTOR\tLEXICAL\tFULLTEXT\tOVERLAP")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.4f\t%.3f\t%.3f\t%.3f\t%d\n",
			r.ProteinID, r.Score, r.Vector, r.Lexical, r.FullText, r.Overlap)
	}
	return tw.Flush()
}

// readQuery returns the --query flag or the contents of --file.
func readQuery(c *cli.Context) (string, error) {
	if q := c.String("query"); q != "" {
		return q, nil
	}
	path := c.String("file")
	if path == "" {
		return "", errors.New("either --query or --file is required")
	}
	in, err := openInput(c, path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return string(data), nil
}

func searchSequenceCommand(c *cli.Context) error {
	query, err := readQuery(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	threshold := db.Config().Thresholds.Search
	if c.IsSet("threshold") {
		threshold = c.Float64("threshold")
	}
	var opts []search.SequenceOption
	if !c.Bool("enrich") {
		opts = append(opts, search.WithEnricher(nil))
	}
	searcher, err := db.NewSequenceSearcher(opts...)
	if err != nil {
		return fmt.Errorf("failed to create sequence searcher: %w", err)
	}

	res, err := searcher.Search(c.Context, query, threshold)
	if err != nil {
		return fmt.Errorf("sequence search failed: %w", err)
	}

	out := sequenceOutput{Hits: toHitRows(res.Hits), Enrichment: toEnrichmentRows(res.Enrichment)}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, out)
	}
	if err := writeHits(c.App.Writer, out.Hits); err != nil {
		return err
	}
	if len(out.Enrichment) > 0 {
		fmt.Fprintln(c.App.Writer)
		return writeEnrichment(c.App.Writer, out.Enrichment)
	}
	return nil
}

func searchTextCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}
	topK := c.Int("top-k")
	if topK <= 0 {
		topK = db.Config().Fusion.TopK
	}

	records, err := searcher.Search(c.Context, c.String("query"), topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	rows := make([]fusionRow, len(records))
	for i, r := range records {
		rows[i] = fusionRow{
			ProteinID: r.ID,
			Score:     r.Combined,
			Vector:    r.Scores[core.SourceVector],
			Lexical:   r.Scores[core.SourceLexical],
			FullText:  r.Scores[core.SourceFullText],
			Overlap:   r.Overlap,
			Content:   r.Content,
		}
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, rows)
	}
	return writeFusion(c.App.Writer, rows)
}

// parseIDs splits comma, whitespace or newline separated accessions.
func parseIDs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func enrichCommand(c *cli.Context) error {
	ids := parseIDs(c.String("ids"))
	if path := c.String("file"); path != "" {
		in, err := openInput(c, path)
		if err != nil {
			return err
		}
		defer in.Close()
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			ids = append(ids, parseIDs(scanner.Text())...)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read ids: %w", err)
		}
	}
	if len(ids) == 0 {
		return errors.New("either --ids or --file is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.Analyzer().Analyze(c.Context, ids)
	if err != nil {
		return fmt.Errorf("enrichment failed: %w", err)
	}
	rows := toEnrichmentRows(records)
	if c.Bool("json") {
		return writeJSON(c.App.Writer, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintf(c.App.ErrWriter, "No enriched terms for %d proteins\n", len(ids))
		return nil
	}
	return writeEnrichment(c.App.Writer, rows)
}
