package inmemdb

import (
	"sync"

	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
)

type (
	// DB holds every table in memory behind a single lock.
	DB struct {
		sync.RWMutex

		templates          map[string]norm.Template
		templateBoundaries map[string][]grading.Boundary // {templateID: rows}
		groupNorms         map[string]norm.GroupNorm
		groupNormBounds    map[string][]grading.Boundary // {groupNormID: rows}
		students           map[string]norm.Student
		norms              map[string]norm.Norm
	}
)

func Open() *DB {
	return &DB{
		templates:          make(map[string]norm.Template),
		templateBoundaries: make(map[string][]grading.Boundary),
		groupNorms:         make(map[string]norm.GroupNorm),
		groupNormBounds:    make(map[string][]grading.Boundary),
		students:           make(map[string]norm.Student),
		norms:              make(map[string]norm.Norm),
	}
}

// The Put* methods load reference data owned by other systems (templates, groups, students).

func (db *DB) PutTemplate(tmpl norm.Template, bounds ...grading.Boundary) {
	db.Lock()
	defer db.Unlock()
	db.templates[tmpl.ID] = tmpl
	db.templateBoundaries[tmpl.ID] = append([]grading.Boundary(nil), bounds...)
}

func (db *DB) PutGroupNorm(gn norm.GroupNorm, bounds ...grading.Boundary) {
	db.Lock()
	defer db.Unlock()
	db.groupNorms[gn.ID] = gn
	db.groupNormBounds[gn.ID] = append([]grading.Boundary(nil), bounds...)
}

func (db *DB) PutStudent(st norm.Student) {
	db.Lock()
	defer db.Unlock()
	db.students[st.ID] = st
}
