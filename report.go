// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beamflow

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultReportTemplate prints one line per hypothesis: score and text.
var DefaultReportTemplate = template.Must(template.New("report").Parse(
	`{{range .Hypotheses}}{{printf "%.4f" .Score}}	{{.Text}}
{{end}}`))

// BuildReportFromTemplateFile builds a report applying the given translation to the template file.
func BuildReportFromTemplateFile(t Translation, filename string) (string, error) {
	rt, err := template.ParseFiles(filename)
	if err != nil {
		return "", fmt.Errorf("unable to read the template file: %w", err)
	}
	return BuildReportFromTemplate(t, rt)
}

// BuildReportFromTemplate builds a report applying the given translation to the template.
func BuildReportFromTemplate(t Translation, rt *template.Template) (string, error) {
	result := new(bytes.Buffer)
	err := rt.Execute(result, t)
	if err != nil {
		return "", fmt.Errorf("unable to execute the template: %w", err)
	}
	return result.String(), nil
}
