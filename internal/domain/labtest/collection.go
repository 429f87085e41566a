package labtest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/labreport/internal/domain/patient"
)

var (
	ErrRowNotFound   = errors.New("test row not found")
	ErrUnknownTest   = errors.New("test not found in catalog")
	ErrNotSelectable = errors.New("category header cannot be used as a test type")
	ErrNotCategory   = errors.New("test is not a category header")
)

// Row is one user-added line in the test list. RecommendedValue, Unit,
// Category and Rule are derived from the bound catalog entry and the
// patient's sex; they are never edited directly.
type Row struct {
	ID               uuid.UUID
	TestName         string
	ActualValue      string
	RecommendedValue string
	Unit             string
	Category         bool
	Rule             Rule
	ErrorText        string
}

// Collection is the ordered list of test rows for a session. Insertion order
// is display and export order. It is not safe for concurrent use; a session
// mutates it from a single goroutine.
type Collection struct {
	catalog *Catalog
	sex     patient.Sex
	rows    []Row
}

// NewCollection returns an empty collection bound to catalog.
func NewCollection(catalog *Catalog, sex patient.Sex) *Collection {
	return &Collection{catalog: catalog, sex: sex}
}

// Catalog returns the catalog rows are bound against.
func (c *Collection) Catalog() *Catalog { return c.catalog }

// Sex returns the sex used for recommended values.
func (c *Collection) Sex() patient.Sex { return c.sex }

// Len returns the number of rows.
func (c *Collection) Len() int { return len(c.rows) }

// Rows returns a copy of the rows in order.
func (c *Collection) Rows() []Row {
	out := make([]Row, len(c.rows))
	copy(out, c.rows)
	return out
}

// Row returns the row with the given id.
func (c *Collection) Row(id uuid.UUID) (Row, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return Row{}, false
	}
	return c.rows[i], true
}

// Invalid returns the rows whose last validation produced an error.
func (c *Collection) Invalid() []Row {
	var out []Row
	for _, r := range c.rows {
		if r.ErrorText != "" {
			out = append(out, r)
		}
	}
	return out
}

// AddRow appends a row bound to the catalog's default test.
func (c *Collection) AddRow() Row {
	r := Row{ID: uuid.New()}
	c.bind(&r, c.catalog.Default())
	c.rows = append(c.rows, r)
	return r
}

// AddCategory appends a category header row used as a section break.
func (c *Collection) AddCategory(name string) (Row, error) {
	e, ok := c.catalog.Lookup(name)
	if !ok {
		return Row{}, fmt.Errorf("add category %q: %w", name, ErrUnknownTest)
	}
	if !e.Category {
		return Row{}, fmt.Errorf("add category %q: %w", name, ErrNotCategory)
	}
	r := Row{ID: uuid.New()}
	c.bind(&r, e)
	c.rows = append(c.rows, r)
	return r, nil
}

// RemoveRow deletes the row with the given id. Remaining rows are untouched.
func (c *Collection) RemoveRow(id uuid.UUID) error {
	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrRowNotFound)
	}
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
	return nil
}

// RetypeRow rebinds a row to another test. The actual value and error are
// cleared. Unknown names and category headers are rejected and leave the row
// as it was.
func (c *Collection) RetypeRow(id uuid.UUID, name string) error {
	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("retype %s: %w", id, ErrRowNotFound)
	}
	e, ok := c.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("retype %s to %q: %w", id, name, ErrUnknownTest)
	}
	if e.Category {
		return fmt.Errorf("retype %s to %q: %w", id, name, ErrNotSelectable)
	}
	c.bind(&c.rows[i], e)
	return nil
}

// EditValue sets a row's actual value and revalidates it. Category rows never
// carry an error.
func (c *Collection) EditValue(id uuid.UUID, value string) error {
	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("edit %s: %w", id, ErrRowNotFound)
	}
	r := &c.rows[i]
	r.ActualValue = value
	if r.Category {
		r.ErrorText = ""
		return nil
	}
	r.ErrorText = Validate(value, r.Rule)
	return nil
}

// SetSex recomputes the recommended value of every non-header row for the
// new sex. It overwrites previous values and is idempotent.
func (c *Collection) SetSex(sex patient.Sex) {
	c.sex = sex
	for i := range c.rows {
		r := &c.rows[i]
		if r.Category {
			continue
		}
		e, ok := c.catalog.Lookup(r.TestName)
		if !ok {
			continue
		}
		r.RecommendedValue = e.RecommendedFor(sex)
	}
}

func (c *Collection) bind(r *Row, e Entry) {
	r.TestName = e.Name
	r.Unit = e.Unit
	r.Category = e.Category
	r.Rule = e.Rule
	r.ActualValue = ""
	r.ErrorText = ""
	if e.Category {
		r.RecommendedValue = ""
		return
	}
	r.RecommendedValue = e.RecommendedFor(c.sex)
}

func (c *Collection) indexOf(id uuid.UUID) int {
	for i := range c.rows {
		if c.rows[i].ID == id {
			return i
		}
	}
	return -1
}
