package normalizer

import (
	"encoding/xml"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// SDMX-ML generic data shapes. Tags match local names, so namespace
// prefixes in the source document are irrelevant.

type genericData struct {
	XMLName xml.Name
	Series  []xmlSeries `xml:"DataSet>Series"`
}

type xmlSeries struct {
	Key []xmlKeyValue `xml:"SeriesKey>Value"`
	Obs []xmlObs      `xml:"Obs"`
}

type xmlKeyValue struct {
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type xmlObs struct {
	Dimension xmlValueAttr `xml:"ObsDimension"`
	Value     xmlValueAttr `xml:"ObsValue"`
}

type xmlValueAttr struct {
	Value string `xml:"value,attr"`
}

// parseXML parses an SDMX-ML generic data message. Series key values go
// through the same rename table as CSV headers; the observation
// dimension is the time period.
func (n *Normalizer) parseXML(payload []byte) (*domain.Table, error) {
	var doc genericData
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, apperrors.NewParsingError("failed to parse XML payload", err)
	}

	table := &domain.Table{}
	seen := make(map[string]bool)
	rowNum := 0

	for _, series := range doc.Series {
		base := domain.Observation{Dimensions: make(map[string]string)}
		for _, kv := range series.Key {
			col := classifyColumn(kv.ID)
			switch col.kind {
			case kindIgnore:
				continue
			case kindCore:
				switch col.name {
				case colIndicator:
					base.Indicator = kv.Value
				case colISO3:
					base.ISO3 = kv.Value
				}
			case kindDimension:
				if kv.Value != "" {
					base.Dimensions[col.name] = kv.Value
					if !seen[col.name] {
						seen[col.name] = true
						table.DimensionColumns = append(table.DimensionColumns, col.name)
					}
				}
			}
		}

		for _, o := range series.Obs {
			rowNum++
			obs := base
			obs.Dimensions = make(map[string]string, len(base.Dimensions))
			for k, v := range base.Dimensions {
				obs.Dimensions[k] = v
			}

			year, err := ParseYear(o.Dimension.Value)
			if err != nil {
				return nil, err
			}
			obs.Period = year

			value, err := parseValue(o.Value.Value, rowNum)
			if err != nil {
				return nil, err
			}
			obs.Value = value

			table.Observations = append(table.Observations, obs)
		}
	}

	return table, nil
}
