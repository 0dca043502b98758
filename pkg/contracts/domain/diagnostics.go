package domain

// ParseWarning records a numeric cell that could not be coerced and was defaulted to 0
type ParseWarning struct {
	Source SourceID `json:"source"`
	Column string   `json:"column"`
	Row    int      `json:"row"`
	Value  string   `json:"value"`
	Reason string   `json:"reason"`
}

// JoinAmbiguityNotice records a join key with several candidate rows
type JoinAmbiguityNotice struct {
	Token      string   `json:"token"`
	Candidates []string `json:"candidates"`
	Chosen     string   `json:"chosen,omitempty"`
	Policy     string   `json:"policy"`
	Dropped    bool     `json:"dropped"`
}

// UndefinedMetric records a ratio whose denominator was zero
type UndefinedMetric struct {
	Metric string `json:"metric"`
	Group  string `json:"group,omitempty"`
	Reason string `json:"reason"`
}

// Diagnostics accumulates the non-fatal conditions of a run
type Diagnostics struct {
	ParseWarnings []ParseWarning        `json:"parse_warnings,omitempty"`
	JoinNotices   []JoinAmbiguityNotice `json:"join_notices,omitempty"`
	Undefined     []UndefinedMetric     `json:"undefined,omitempty"`
	DroppedZero   []string              `json:"dropped_zero,omitempty"`
}

// AddParseWarnings appends parse warnings
func (d *Diagnostics) AddParseWarnings(w ...ParseWarning) {
	d.ParseWarnings = append(d.ParseWarnings, w...)
}

// AddJoinNotices appends join notices
func (d *Diagnostics) AddJoinNotices(n ...JoinAmbiguityNotice) {
	d.JoinNotices = append(d.JoinNotices, n...)
}

// AddUndefined appends undefined metric entries
func (d *Diagnostics) AddUndefined(u ...UndefinedMetric) {
	d.Undefined = append(d.Undefined, u...)
}

// Merge folds another diagnostics log into this one
func (d *Diagnostics) Merge(other Diagnostics) {
	d.ParseWarnings = append(d.ParseWarnings, other.ParseWarnings...)
	d.JoinNotices = append(d.JoinNotices, other.JoinNotices...)
	d.Undefined = append(d.Undefined, other.Undefined...)
	d.DroppedZero = append(d.DroppedZero, other.DroppedZero...)
}

// Count returns the number of recorded conditions
func (d Diagnostics) Count() int {
	return len(d.ParseWarnings) + len(d.JoinNotices) + len(d.Undefined) + len(d.DroppedZero)
}

// Empty reports whether nothing was recorded
func (d Diagnostics) Empty() bool {
	return d.Count() == 0
}
