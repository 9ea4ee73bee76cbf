// Package output writes the final VRP set in the formats the original
// implementation's output.c names: OpenBGPD's config-snippet format,
// BIRD2's static route table, CSV, and JSON. Each writer is a pure
// function over the VRP tree's lexicographic traversal — no validation
// logic lives here.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/cuemby/rpkivet/pkg/model"
)

// Format is a bitmask of the output formats to enable, matching
// extern.h's FORMAT_* constants.
type Format uint8

const (
	FormatOpenBGPD Format = 1 << iota
	FormatBird
	FormatCSV
	FormatJSON
)

func prefixString(v model.Vrp) string {
	w := v.AFI.ByteWidthExported()
	ip := net.IP(v.Prefix.Bytes[:w])
	return fmt.Sprintf("%s/%d", ip.String(), v.Prefix.Length)
}

// WriteOpenBGPD writes the roa-set config snippet OpenBGPD's bgpd.conf
// expects: one "prefix/len source-as AS maxlen N" entry per VRP.
func WriteOpenBGPD(w io.Writer, vrps []model.Vrp) error {
	if _, err := fmt.Fprintln(w, "roa-set {"); err != nil {
		return err
	}
	for _, v := range vrps {
		if _, err := fmt.Fprintf(w, "\t%s source-as %d maxlen %d\n", prefixString(v), v.ASID, v.MaxLength); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteBird writes a BIRD2-style static ROA table.
func WriteBird(w io.Writer, vrps []model.Vrp) error {
	if _, err := fmt.Fprintln(w, "roa table rpkivet {"); err != nil {
		return err
	}
	for _, v := range vrps {
		if _, err := fmt.Fprintf(w, "\troute %s max %d as %d;\n", prefixString(v), v.MaxLength, v.ASID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteCSV writes "ASN,IP Prefix,Max Length,Trust Anchor" rows, the
// layout most relying-party tools converge on.
func WriteCSV(w io.Writer, vrps []model.Vrp) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ASN", "IP Prefix", "Max Length", "Trust Anchor"}); err != nil {
		return err
	}
	for _, v := range vrps {
		row := []string{
			fmt.Sprintf("AS%d", v.ASID),
			prefixString(v),
			fmt.Sprintf("%d", v.MaxLength),
			v.TAL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonVRP struct {
	ASID      uint32 `json:"asn"`
	Prefix    string `json:"prefix"`
	MaxLength int    `json:"maxLength"`
	TAL       string `json:"ta"`
	Expires   int64  `json:"expires"`
}

type jsonDoc struct {
	Metadata struct {
		Counts   int `json:"vrps"`
		Generated int64 `json:"generated"`
	} `json:"metadata"`
	ROAs []jsonVRP `json:"roas"`
}

// WriteJSON writes the RIPE-validator-style JSON document many route
// collectors already consume.
func WriteJSON(w io.Writer, vrps []model.Vrp, generatedUnix int64) error {
	doc := jsonDoc{ROAs: make([]jsonVRP, 0, len(vrps))}
	doc.Metadata.Counts = len(vrps)
	doc.Metadata.Generated = generatedUnix
	for _, v := range vrps {
		doc.ROAs = append(doc.ROAs, jsonVRP{
			ASID: v.ASID, Prefix: prefixString(v), MaxLength: v.MaxLength,
			TAL: v.TAL, Expires: v.Expires.Unix(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteAll writes every format enabled in formats, using the fixed
// filename each format is conventionally given; create is responsible
// for resolving that name against the configured output directory.
func WriteAll(formats Format, vrps []model.Vrp, generatedUnix int64, create func(name string) (io.WriteCloser, error)) error {
	type entry struct {
		bit  Format
		name string
		fn   func(io.Writer) error
	}
	entries := []entry{
		{FormatOpenBGPD, "openbgpd.conf", func(w io.Writer) error { return WriteOpenBGPD(w, vrps) }},
		{FormatBird, "bird.conf", func(w io.Writer) error { return WriteBird(w, vrps) }},
		{FormatCSV, "csv.txt", func(w io.Writer) error { return WriteCSV(w, vrps) }},
		{FormatJSON, "json.json", func(w io.Writer) error { return WriteJSON(w, vrps, generatedUnix) }},
	}
	for _, e := range entries {
		if formats&e.bit == 0 {
			continue
		}
		wc, err := create(e.name)
		if err != nil {
			return fmt.Errorf("output: create %s: %w", e.name, err)
		}
		if err := e.fn(wc); err != nil {
			wc.Close()
			return fmt.Errorf("output: write %s: %w", e.name, err)
		}
		if err := wc.Close(); err != nil {
			return fmt.Errorf("output: close %s: %w", e.name, err)
		}
	}
	return nil
}
