package web

import (
	"encoding/json"

	"github.com/sweeney/amp-control/internal/status"
)

func formatJSON(doc status.Document) []byte {
	data, _ := json.MarshalIndent(doc, "", "  ")
	return data
}
