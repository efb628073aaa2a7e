package classifier

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// UnknownRisk is returned by RiskFor for labels outside the risk table.
const UnknownRisk = "Unknown Risk"

// DefaultLabels is the model output order of the skin lesion classifier.
var DefaultLabels = []string{
	"Melanocytic nevi (nv)",
	"Melanoma (mel)",
	"Benign keratosis-like lesions (bkl)",
	"Basal cell carcinoma (bcc)",
	"Actinic keratoses (akiec)",
	"Vascular lesions (vasc)",
	"Dermatofibroma (df)",
}

// riskByCode maps the lesion code to its risk tier.
var riskByCode = map[string]string{
	"nv":    "Low Risk (benign)",
	"mel":   "Very High Risk (life-threatening malignant tumor)",
	"bkl":   "Low Risk",
	"bcc":   "High Risk (malignant but slow growing)",
	"akiec": "Moderate Risk (pre-cancerous lesion)",
	"vasc":  "Low Risk (benign)",
	"df":    "Low Risk (benign)",
}

// RiskFor returns the risk tier for a label. The label may be the full
// display name, e.g. "Melanoma (mel)", or the bare code "mel".
func RiskFor(label string) string {
	if risk, ok := riskByCode[LabelCode(label)]; ok {
		return risk
	}
	return UnknownRisk
}

// LabelCode extracts the short code from a label like "Melanoma (mel)".
// A label without a parenthesised suffix is returned lowercased.
func LabelCode(label string) string {
	label = strings.TrimSpace(label)
	if strings.HasSuffix(label, ")") {
		if open := strings.LastIndex(label, "("); open >= 0 {
			return strings.ToLower(strings.TrimSpace(label[open+1 : len(label)-1]))
		}
	}
	return strings.ToLower(label)
}

// Categories returns a copy of the label list for display in filters.
func (c *Classifier) Categories() []string {
	return append([]string(nil), c.labels...)
}

// LoadLabels reads one label per line. Blank lines and lines starting
// with '#' are skipped.
func LoadLabels(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}
