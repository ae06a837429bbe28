package render

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/serialize"
)

// CSVRenderer writes a header row of capitalized field names, adds one
// "<Relation>.Id" column per expanded to-one relation holding the
// embedded row's self-link href, and streams every row, paginated only
// when an explicit page size was requested. The other fields of an
// expanded relation get no column. To-many relations never flatten;
// they are skipped.
type CSVRenderer struct{}

func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

func (CSVRenderer) Render(ctx context.Context, w io.Writer, in Input) *apierror.Error {
	table := in.Plan.Table
	cols, err := csvColumns(table, in.ExpandReq)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.header
	}
	if werr := cw.Write(header); werr != nil {
		return apierror.Wrap(apierror.KindInternal, werr)
	}

	written := 0
	for {
		row, rerr := in.Rows.Next(ctx)
		if rerr != nil {
			return apierror.Wrap(apierror.KindInternal, rerr)
		}
		if row == nil {
			break
		}
		if !in.Plan.Pagination.Disabled && in.Plan.Pagination.Size > 0 && written >= in.Plan.Pagination.Size {
			break // the extra look-ahead row fetched for next-page detection
		}
		written++
		rendered, berr := in.Builder.BuildRow(in.Plan.Dataset, table, row, in.ExpandReq, 0)
		if berr != nil {
			return berr
		}
		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = c.extract(rendered)
		}
		if werr := cw.Write(record); werr != nil {
			return apierror.Wrap(apierror.KindInternal, werr)
		}
	}
	cw.Flush()
	if werr := cw.Error(); werr != nil {
		return apierror.Wrap(apierror.KindInternal, werr)
	}
	return nil
}

type csvColumn struct {
	header  string
	extract func(row map[string]any) string
}

// csvColumns enumerates the flattened column set: base scalar fields,
// plus one "<Relation>.Id" column per expanded to-one relation, holding
// the embedded row's self-link href (the relation's other fields get no
// column). A to-many relation cannot flatten into a row, so expansion
// of one is skipped rather than rejected.
func csvColumns(t *sdata.Table, req serialize.Request) ([]csvColumn, *apierror.Error) {
	var cols []csvColumn
	for _, f := range t.Fields {
		if !f.IsRelation() {
			fieldID := f.ID
			cols = append(cols, csvColumn{
				header: capitalize(fieldID),
				extract: func(row map[string]any) string {
					v, ok := row[fieldID]
					if !ok {
						return ""
					}
					return fmt.Sprint(v)
				},
			})
			continue
		}

		wantEmbed := req.Mode == serialize.ExpandAll || (req.Mode == serialize.ExpandScope && req.ScopePaths[f.ID])
		if !wantEmbed {
			continue
		}
		if f.IsNestedTable || f.NMRelation != nil {
			continue
		}

		relField := f.ID
		cols = append(cols, csvColumn{
			header: capitalize(relField) + ".Id",
			extract: func(row map[string]any) string {
				embedded, ok := row["_embedded"].(map[string]any)
				if !ok {
					return ""
				}
				child, ok := embedded[relField].(map[string]any)
				if !ok {
					return ""
				}
				links, ok := child["_links"].(map[string]any)
				if !ok {
					return ""
				}
				self, ok := links["self"].(map[string]any)
				if !ok {
					return ""
				}
				return fmt.Sprint(self["href"])
			},
		})
	}
	return cols, nil
}

func capitalize(id string) string {
	snake := sdata.SnakeName(id)
	parts := strings.Split(snake, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}
