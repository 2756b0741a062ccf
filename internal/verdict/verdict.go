package verdict

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/icapscan/internal/icap"
	"github.com/nao1215/icapscan/internal/model"
)

// ErrUnexpectedStatus is returned when the server answers with an ICAP status
// that carries no verdict, such as 404 Service Not Found or 500.
var ErrUnexpectedStatus = errors.New("verdict: unexpected ICAP status")

// Vendor shape names recorded in Result.Vendor.
const (
	VendorVirusID         = "x-virus-id"
	VendorInfectionFound  = "x-infection-found"
	VendorViolationsFound = "x-violations-found"
	VendorFSecure         = "x-fsecure-infection-name"
	VendorResponseInfo    = "x-response-info"
	VendorBodyHeaders     = "body-headers"
	VendorHTTPForbidden   = "http-403"
)

const (
	statusOK            = 200
	statusNoContent     = 204
	httpStatusForbidden = 403

	violationLinesPerEntry = 4
)

// Result is the interpretation of one RESPMOD response.
type Result struct {
	Verdict    model.Verdict
	Threats    []model.Threat
	Vendor     string
	ISTag      string
	ICAPStatus int
	HTTPStatus int
}

// ApplyTo copies the result into report.
func (r *Result) ApplyTo(report *model.ScanReport) {
	report.Verdict = r.Verdict
	report.Vendor = r.Vendor
	report.ISTag = r.ISTag
	report.ICAPStatus = r.ICAPStatus
	report.HTTPStatus = r.HTTPStatus
	for _, t := range r.Threats {
		report.AddThreat(t)
	}
}

// shape recognizes one vendor's way of reporting a detection.
// It returns nil when the response does not use that shape.
type shape struct {
	name  string
	match func(resp *icap.Response) []model.Threat
}

// shapes are tried in order; the first one that matches decides the verdict.
var shapes = []shape{
	{VendorVirusID, matchVirusID},
	{VendorInfectionFound, matchInfectionFound},
	{VendorViolationsFound, matchViolationsFound},
	{VendorFSecure, matchFSecure},
	{VendorResponseInfo, matchResponseInfo},
	{VendorBodyHeaders, matchBodyHeaders},
}

// Analyze interprets a raw RESPMOD response.
//
// A 204 response is clean. Otherwise the ICAP headers are matched against
// the known vendor shapes; when none matches, an encapsulated HTTP 403 is
// taken as a block without a threat name and anything else as clean.
func Analyze(raw []byte) (*Result, error) {
	resp, err := icap.SplitResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing ICAP response: %w", err)
	}

	res := &Result{
		ISTag:      resp.Header.Get("ISTag"),
		ICAPStatus: resp.Header.StatusCode,
		HTTPStatus: resp.HTTPStatusCode,
	}

	switch res.ICAPStatus {
	case statusNoContent:
		res.Verdict = model.VerdictClean
		return res, nil
	case statusOK:
	default:
		return res, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, res.ICAPStatus, resp.Header.StatusMessage)
	}

	for _, s := range shapes {
		if threats := s.match(resp); len(threats) > 0 {
			res.Verdict = model.VerdictInfected
			res.Vendor = s.name
			res.Threats = threats
			return res, nil
		}
	}

	if res.HTTPStatus == httpStatusForbidden {
		res.Verdict = model.VerdictInfected
		res.Vendor = VendorHTTPForbidden
		res.Threats = []model.Threat{{Name: model.UnidentifiedThreat}}
		return res, nil
	}

	res.Verdict = model.VerdictClean
	return res, nil
}

// matchVirusID handles servers that name the threat in X-Virus-ID, or in
// X-Virus-Name without any other marker.
func matchVirusID(resp *icap.Response) []model.Threat {
	for _, name := range []string{"X-Virus-ID", "X-Virus-Name"} {
		if v := strings.TrimSpace(resp.Header.Get(name)); v != "" {
			return []model.Threat{{Name: v}}
		}
	}
	return nil
}

// matchInfectionFound handles "X-Infection-Found: Type=0; Resolution=2; Threat=Eicar;".
func matchInfectionFound(resp *icap.Response) []model.Threat {
	v := resp.Header.Get("X-Infection-Found")
	if v == "" {
		return nil
	}
	return []model.Threat{parseInfectionFound(v)}
}

// parseInfectionFound reads the key=value list of an X-Infection-Found value.
// A value without a Threat key is used as the name as a whole.
func parseInfectionFound(v string) model.Threat {
	var t model.Threat
	for field := range strings.SplitSeq(v, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(field), "=")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "type":
			t.Type = value
		case "resolution":
			t.Resolution = value
		case "threat":
			t.Name = value
		}
	}
	if t.Name == "" {
		t.Name = strings.TrimSpace(v)
	}
	return t
}

// matchViolationsFound handles X-Violations-Found, whose value is a count
// followed by continuation lines, four per violation: file name, threat
// name, threat id and disposition.
//
// The lines are read from the raw response because folding them into a
// single header value would lose the boundaries of names with spaces.
func matchViolationsFound(resp *icap.Response) []model.Threat {
	if _, ok := resp.Header.Lookup("X-Violations-Found"); !ok {
		return nil
	}

	count, lines := violationLines(resp.Raw)
	if count == 0 {
		return nil
	}

	var threats []model.Threat
	for i := 0; i+violationLinesPerEntry <= len(lines) && len(threats) < count; i += violationLinesPerEntry {
		threats = append(threats, model.Threat{
			FileName:    lines[i],
			Name:        lines[i+1],
			ID:          lines[i+2],
			Disposition: lines[i+3],
		})
	}
	if len(threats) == 0 {
		threats = append(threats, model.Threat{Name: model.UnidentifiedThreat})
	}
	return threats
}

// violationLines finds the X-Violations-Found header in the ICAP head of raw
// and returns its count and trimmed continuation lines.
func violationLines(raw []byte) (int, []string) {
	head := raw
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		head = raw[:i]
	}

	var (
		count   = -1
		lines   []string
		inBlock bool
	)
	for line := range bytes.Lines(head) {
		line = bytes.TrimRight(line, "\r\n")
		if inBlock {
			if len(line) == 0 || (line[0] != ' ' && line[0] != '\t') {
				break
			}
			lines = append(lines, string(bytes.TrimSpace(line)))
			continue
		}

		name, value, found := bytes.Cut(line, []byte(":"))
		if found && strings.EqualFold(string(bytes.TrimSpace(name)), "X-Violations-Found") {
			n, err := strconv.Atoi(string(bytes.TrimSpace(value)))
			if err == nil {
				count = n
			}
			inBlock = true
		}
	}

	if count < 0 {
		count = len(lines) / violationLinesPerEntry
	}
	return count, lines
}

// matchFSecure handles the quoted X-FSecure-Infection-Name header.
func matchFSecure(resp *icap.Response) []model.Threat {
	name := resp.Header.Get("X-FSecure-Infection-Name")
	if name == "" {
		return nil
	}
	return []model.Threat{{
		Name: name,
		Type: resp.Header.Get("X-FSecure-Scan-Result"),
	}}
}

// matchResponseInfo handles "X-Response-Info: Blocked", naming the threat in
// X-Virus-Name or X-Response-Desc.
func matchResponseInfo(resp *icap.Response) []model.Threat {
	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get("X-Response-Info")), "blocked") {
		return nil
	}

	name := model.UnidentifiedThreat
	for _, h := range []string{"X-Virus-Name", "X-Response-Desc"} {
		if v := strings.TrimSpace(resp.Header.Get(h)); v != "" {
			name = v
			break
		}
	}
	return []model.Threat{{Name: name}}
}

// matchBodyHeaders handles servers that put their findings in a header block
// inside the encapsulated HTTP body instead of the ICAP head.
func matchBodyHeaders(resp *icap.Response) []model.Threat {
	if len(resp.Body) == 0 {
		return nil
	}

	body, err := resp.DecodedBody()
	if err != nil || len(body) == 0 {
		body = resp.Body
	}

	inner, err := icap.ParseHeaders(body, icap.WithoutStatusLine(), icap.WithBodyHeaders())
	if err != nil {
		return nil
	}

	if v := inner.Get("X-Infection-Found"); v != "" {
		return []model.Threat{parseInfectionFound(v)}
	}
	for _, name := range []string{"X-Virus-Name", "X-Virus-ID"} {
		if v := strings.TrimSpace(inner.Get(name)); v != "" {
			return []model.Threat{{Name: v}}
		}
	}
	return nil
}
