package models

// Attribute names a column taking part in anonymization.
type Attribute string

const (
	AttributeLocation  Attribute = "localidade"
	AttributeBirthDate Attribute = "data_nascimento"
	AttributeRaceColor Attribute = "raca_cor"
)

// Identifier and derived column names
const (
	ColumnName           = "nome"
	ColumnCPF            = "cpf"
	ColumnClassSize      = "class_size"
	ColumnClassDiversity = "class_sensitive_diversity"
)

// Record is one person's row. Raw values are kept untouched for the whole
// run; Generalized holds the current quasi-identifier values and Levels the
// generalization level reached for each of them.
type Record struct {
	Index int `json:"index"`

	Name string `json:"nome"`
	CPF  string `json:"cpf"`

	Location  string `json:"localidade"`
	BirthDate string `json:"data_nascimento"`
	RaceColor string `json:"raca_cor"`

	Generalized map[Attribute]string `json:"generalized,omitempty"`
	Levels      map[Attribute]int    `json:"levels,omitempty"`

	ClassSize      int `json:"class_size,omitempty"`
	ClassDiversity int `json:"class_sensitive_diversity,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Raw returns the original value of an attribute.
func (r *Record) Raw(attr Attribute) string {
	switch attr {
	case AttributeLocation:
		return r.Location
	case AttributeBirthDate:
		return r.BirthDate
	case AttributeRaceColor:
		return r.RaceColor
	}
	return r.Extra[string(attr)]
}

// Value returns the current (possibly generalized) value of an attribute.
func (r *Record) Value(attr Attribute) string {
	if v, ok := r.Generalized[attr]; ok {
		return v
	}
	return r.Raw(attr)
}

// Level returns the tracked generalization level and whether one was tracked.
func (r *Record) Level(attr Attribute) (int, bool) {
	lvl, ok := r.Levels[attr]
	return lvl, ok
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Generalized != nil {
		c.Generalized = make(map[Attribute]string, len(r.Generalized))
		for k, v := range r.Generalized {
			c.Generalized[k] = v
		}
	}
	if r.Levels != nil {
		c.Levels = make(map[Attribute]int, len(r.Levels))
		for k, v := range r.Levels {
			c.Levels[k] = v
		}
	}
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Dataset is an ordered table of records. Columns keeps the source column
// order so exports can reproduce the input schema.
type Dataset struct {
	Columns []string  `json:"columns"`
	Records []*Record `json:"records"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Clone deep-copies the dataset so a run can mutate it freely.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return &Dataset{}
	}
	c := &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Records: make([]*Record, len(d.Records)),
	}
	for i, r := range d.Records {
		c.Records[i] = r.Clone()
	}
	return c
}
