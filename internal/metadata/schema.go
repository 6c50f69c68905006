package metadata

import (
	"encoding/xml"
	"regexp"
	"strings"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// Parser strategy names, recorded in the snapshot watermark so
// downstream consumers can detect reduced-fidelity enrichment.
const (
	StructureParserName = "structure"
	FallbackParserName  = "flat"
)

// SchemaParser turns raw SDMX-ML structure documents into dataflows and
// codelists. Two implementations share this contract: the preferred
// structure parser handles arbitrary schema complexity, the fallback
// one is a flat scan that may classify fewer indicators on very large
// schemas. Both produce the same output shape.
type SchemaParser interface {
	Name() string
	ParseStructures(data []byte) ([]domain.Dataflow, error)
	ParseCodelist(data []byte) ([]Code, error)
}

// dimensions that are not disaggregation axes
const (
	dimRefArea   = "REF_AREA"
	dimIndicator = "INDICATOR"
	dimTime      = "TIME_PERIOD"
)

// totalCode is the aggregate code used across this API family.
const totalCode = "_T"

// XML shapes for the SDMX 2.1 structure message. Tags match local
// names, so namespace prefixes in the source document are irrelevant.

type structureDoc struct {
	XMLName        xml.Name
	Dataflows      []xmlDataflow  `xml:"Structures>Dataflows>Dataflow"`
	DataStructures []xmlStructure `xml:"Structures>DataStructures>DataStructure"`
	Codelists      []xmlCodelist  `xml:"Structures>Codelists>Codelist"`
}

type xmlDataflow struct {
	ID          string          `xml:"id,attr"`
	AgencyID    string          `xml:"agencyID,attr"`
	Version     string          `xml:"version,attr"`
	Name        string          `xml:"Name"`
	Annotations []xmlAnnotation `xml:"Annotations>Annotation"`
	Structure   xmlRef          `xml:"Structure>Ref"`
}

type xmlAnnotation struct {
	Type string `xml:"AnnotationType"`
	Text string `xml:"AnnotationText"`
}

type xmlRef struct {
	ID       string `xml:"id,attr"`
	AgencyID string `xml:"agencyID,attr"`
}

type xmlStructure struct {
	ID         string         `xml:"id,attr"`
	Dimensions []xmlDimension `xml:"DataStructureComponents>DimensionList>Dimension"`
}

type xmlDimension struct {
	ID          string `xml:"id,attr"`
	Position    int    `xml:"position,attr"`
	Enumeration xmlRef `xml:"LocalRepresentation>Enumeration>Ref"`
}

type xmlCodelist struct {
	ID    string    `xml:"id,attr"`
	Name  string    `xml:"Name"`
	Codes []xmlCode `xml:"Code"`
}

type xmlCode struct {
	ID          string `xml:"id,attr"`
	Name        string `xml:"Name"`
	Description string `xml:"Description"`
}

// StructureParser is the preferred schema parser. It decodes the full
// structure message and resolves every dataflow's dimension list and
// allowed codes through the data-structure definitions and codelists.
type StructureParser struct{}

// NewStructureParser creates the preferred parser.
func NewStructureParser() *StructureParser {
	return &StructureParser{}
}

// Name implements SchemaParser.
func (p *StructureParser) Name() string { return StructureParserName }

// ParseStructures implements SchemaParser.
func (p *StructureParser) ParseStructures(data []byte) ([]domain.Dataflow, error) {
	var doc structureDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewParsingError("failed to parse structure document", err)
	}
	if len(doc.Dataflows) == 0 {
		return nil, apperrors.NewParsingError("structure document contains no dataflows", nil)
	}

	codelists := make(map[string][]Code, len(doc.Codelists))
	for _, cl := range doc.Codelists {
		codelists[cl.ID] = convertCodes(cl.Codes)
	}

	structures := make(map[string][]xmlDimension, len(doc.DataStructures))
	for _, dsd := range doc.DataStructures {
		structures[dsd.ID] = dsd.Dimensions
	}

	flows := make([]domain.Dataflow, 0, len(doc.Dataflows))
	for _, xf := range doc.Dataflows {
		flow := domain.Dataflow{
			ID:      xf.ID,
			Agency:  xf.AgencyID,
			Version: xf.Version,
			Name:    strings.TrimSpace(xf.Name),
			Status:  statusFromAnnotations(xf.Annotations),
		}

		for _, xd := range structures[xf.Structure.ID] {
			if xd.ID == dimTime {
				continue
			}
			spec := domain.DimensionSpec{Name: xd.ID}
			if codes, ok := codelists[xd.Enumeration.ID]; ok {
				for _, c := range codes {
					spec.AllowedCodes = append(spec.AllowedCodes, c.ID)
					if c.ID == totalCode {
						spec.HasTotalCode = true
					}
				}
			}
			flow.Dimensions = append(flow.Dimensions, spec)
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

// ParseCodelist implements SchemaParser.
func (p *StructureParser) ParseCodelist(data []byte) ([]Code, error) {
	var doc structureDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewParsingError("failed to parse codelist document", err)
	}
	if len(doc.Codelists) == 0 {
		return nil, apperrors.NewParsingError("document contains no codelists", nil)
	}
	return convertCodes(doc.Codelists[0].Codes), nil
}

func convertCodes(codes []xmlCode) []Code {
	out := make([]Code, 0, len(codes))
	for _, c := range codes {
		out = append(out, Code{
			ID:          c.ID,
			Name:        strings.TrimSpace(c.Name),
			Description: strings.TrimSpace(c.Description),
		})
	}
	return out
}

func statusFromAnnotations(anns []xmlAnnotation) domain.DataflowStatus {
	for _, a := range anns {
		if !strings.EqualFold(a.Type, "STATUS") {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(a.Text)) {
		case "deprecated", "limited":
			return domain.DataflowDeprecated
		case "empty", "placeholder":
			return domain.DataflowEmpty
		}
	}
	return domain.DataflowLive
}

// maxFallbackSchemaBytes bounds how large a single data-structure
// section the fallback parser will scan for dimensions. Larger schemas
// yield a dataflow with no dimension detail, which downgrades the
// classification fidelity for its indicators.
const maxFallbackSchemaBytes = 1 << 21

// FallbackParser is the reduced-fidelity schema parser, used when the
// preferred one cannot handle the document. It scans tags with regular
// expressions instead of decoding the full structure tree.
type FallbackParser struct{}

// NewFallbackParser creates the fallback parser.
func NewFallbackParser() *FallbackParser {
	return &FallbackParser{}
}

// Name implements SchemaParser.
func (p *FallbackParser) Name() string { return FallbackParserName }

var (
	flatDataflowRe  = regexp.MustCompile(`<(?:\w+:)?Dataflow\b[^>]*>`)
	flatStructureRe = regexp.MustCompile(`(?s)<(?:\w+:)?DataStructure\b[^>]*>.*?</(?:\w+:)?DataStructure>`)
	flatDimensionRe = regexp.MustCompile(`<(?:\w+:)?Dimension\b[^>]*>`)
	flatCodeRe      = regexp.MustCompile(`<(?:\w+:)?Code\b[^>]*>(?:\s*<(?:\w+:)?Name[^>]*>([^<]*)</(?:\w+:)?Name>)?`)
	attrRe          = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// ParseStructures implements SchemaParser. Dataflow identity and
// dimension names are recovered; allowed-code sets are not, so total
// codes are assumed present for the known disaggregation axes.
func (p *FallbackParser) ParseStructures(data []byte) ([]domain.Dataflow, error) {
	text := string(data)

	flows := make([]domain.Dataflow, 0)
	for _, tag := range flatDataflowRe.FindAllString(text, -1) {
		attrs := attrMap(tag)
		if attrs["id"] == "" || attrs["agencyID"] == "" {
			continue
		}
		flows = append(flows, domain.Dataflow{
			ID:      attrs["id"],
			Agency:  attrs["agencyID"],
			Version: attrs["version"],
			Status:  domain.DataflowLive,
		})
	}
	if len(flows) == 0 {
		return nil, apperrors.NewParsingError("flat scan found no dataflows", nil)
	}

	// Pair DSD sections with dataflows by shared id. Oversized sections
	// are skipped, leaving the dataflow without dimension detail.
	byID := make(map[string]int, len(flows))
	for i, f := range flows {
		byID[f.ID] = i
	}
	for _, section := range flatStructureRe.FindAllString(text, -1) {
		if len(section) > maxFallbackSchemaBytes {
			continue
		}
		head := section[:strings.Index(section, ">")+1]
		idx, ok := byID[strings.TrimPrefix(attrMap(head)["id"], "DSD_")]
		if !ok {
			continue
		}
		for _, dimTag := range flatDimensionRe.FindAllString(section, -1) {
			id := attrMap(dimTag)["id"]
			if id == "" || id == dimTime {
				continue
			}
			flows[idx].Dimensions = append(flows[idx].Dimensions, domain.DimensionSpec{
				Name:         id,
				HasTotalCode: id != dimRefArea && id != dimIndicator,
			})
		}
	}

	return flows, nil
}

// ParseCodelist implements SchemaParser.
func (p *FallbackParser) ParseCodelist(data []byte) ([]Code, error) {
	matches := flatCodeRe.FindAllStringSubmatch(string(data), -1)
	if len(matches) == 0 {
		return nil, apperrors.NewParsingError("flat scan found no codes", nil)
	}
	codes := make([]Code, 0, len(matches))
	for _, m := range matches {
		attrs := attrMap(m[0])
		if attrs["id"] == "" {
			continue
		}
		codes = append(codes, Code{ID: attrs["id"], Name: strings.TrimSpace(m[1])})
	}
	return codes, nil
}

func attrMap(tag string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
		out[m[1]] = m[2]
	}
	return out
}
