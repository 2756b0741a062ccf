// Package verdict turns raw ICAP RESPMOD responses into scan verdicts.
//
// ICAP itself only says whether content was modified. Antivirus servers
// report detections through vendor-specific headers, and several of them
// deviate from the header grammar in ways that need special handling:
//
//   - X-Virus-ID (or a bare X-Virus-Name) carrying the threat name
//   - X-Infection-Found with "Type=...; Resolution=...; Threat=...;" fields
//   - X-Violations-Found with a count and four continuation lines per
//     violation, read from the raw response
//   - X-FSecure-Infection-Name with a quoted name
//   - X-Response-Info: Blocked with the name in X-Virus-Name or X-Response-Desc
//   - a header block embedded in the encapsulated HTTP body
//
// Shapes are tried in that order. A 204 No Content response is always clean;
// a 200 response matching no shape is infected only when the encapsulated
// HTTP response is a 403.
package verdict
