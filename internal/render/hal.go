package render

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	"github.com/amsterdam/dso-gateway/internal/apierror"
)

// HALRenderer wraps the list into the DSO envelope:
// {_links:{self,next,previous?}, _embedded:{<table>:[...]}, page:{...}}.
// `next` is present iff the RowSource yielded one more row than the
// page size (the SQL layer fetches size+1 for exactly this purpose).
type HALRenderer struct{}

func (HALRenderer) ContentType() string { return "application/hal+json; charset=utf-8" }

type halPage struct {
	Number        int    `json:"number"`
	Size          int    `json:"size"`
	TotalElements *int64 `json:"totalElements,omitempty"`
	TotalPages    *int   `json:"totalPages,omitempty"`
}

func (HALRenderer) Render(ctx context.Context, w io.Writer, in Input) *apierror.Error {
	enc := json.NewEncoder(w)

	rows := make([]map[string]any, 0, in.Plan.Pagination.Size)
	hasNext := false

	for {
		row, err := in.Rows.Next(ctx)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, err)
		}
		if row == nil {
			break
		}
		if !in.Plan.Pagination.Disabled && len(rows) >= in.Plan.Pagination.Size {
			hasNext = true
			break
		}
		rendered, berr := in.Builder.BuildRow(in.Plan.Dataset, in.Plan.Table, row, in.ExpandReq, 0)
		if berr != nil {
			return berr
		}
		rows = append(rows, rendered)
	}

	links := map[string]any{"self": map[string]any{"href": in.SelfHref}}
	if hasNext {
		links["next"] = map[string]any{"href": pageHref(in.SelfHref, in.Plan.Pagination.Page+1)}
	}
	if in.Plan.Pagination.Page > 1 {
		links["previous"] = map[string]any{"href": pageHref(in.SelfHref, in.Plan.Pagination.Page-1)}
	}

	embedded := map[string]any{in.Plan.Table.ID: rows}

	page := halPage{Number: in.Plan.Pagination.Page, Size: in.Plan.Pagination.Size}
	if in.TotalCount != nil {
		page.TotalElements = in.TotalCount
		totalPages := int((*in.TotalCount + int64(in.Plan.Pagination.Size) - 1) / int64(in.Plan.Pagination.Size))
		page.TotalPages = &totalPages
	}

	body := map[string]any{
		"_links":    links,
		"_embedded": embedded,
		"page":      page,
	}
	if err := enc.Encode(body); err != nil {
		return apierror.Wrap(apierror.KindInternal, err)
	}
	return nil
}

// pageHref rewrites the self URL's page parameter rather than appending
// a duplicate.
func pageHref(self string, page int) string {
	u, err := url.Parse(self)
	if err != nil {
		return self
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
