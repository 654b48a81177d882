package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Project{},
	&Region{},
	&Marker{},
	&Snapshot{},
}

// Project is one annotated video, identified by name
type Project struct {
	gorm.Model
	Name      string         `json:"name" gorm:"size:200;uniqueIndex"`
	SessionID string         `json:"sessionId" gorm:"size:64"`
	StartTime time.Time      `json:"startTime" gorm:"index:idx_project_start"`
	Metadata  datatypes.JSON `json:"metadata"`

	Regions   []Region   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Markers   []Marker   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Snapshots []Snapshot `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Project) TableName() string {
	return "projects"
}

// Region is a rectangular area of interest. Seq keeps the insertion order.
type Region struct {
	ID        uint `json:"-" gorm:"primarykey;autoIncrement"`
	ProjectID uint `json:"projectId" gorm:"index:idx_region_project_id;uniqueIndex:idx_region_project_region"`
	Seq       int  `json:"seq"`
	RegionID  int  `json:"regionId" gorm:"uniqueIndex:idx_region_project_region"`
	X         int  `json:"x"`
	Y         int  `json:"y"`
	Width     int  `json:"width"`
	Height    int  `json:"height"`
}

func (*Region) TableName() string {
	return "regions"
}

// Marker is a line or point placed on a frame. Lines use all four
// coordinates; points use X1 and Y1 only.
type Marker struct {
	ID        uint    `json:"-" gorm:"primarykey;autoIncrement"`
	ProjectID uint    `json:"projectId" gorm:"index:idx_marker_project_id"`
	Seq       int     `json:"seq"`
	RegionID  int     `json:"regionId"`
	FamilyID  int     `json:"familyId"`
	Frame     int     `json:"frame"`
	Kind      string  `json:"kind" gorm:"size:8;index:idx_marker_kind"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
}

func (*Marker) TableName() string {
	return "markers"
}

// Snapshot records the integrity hash of a saved state
type Snapshot struct {
	ID        uint      `json:"-" gorm:"primarykey;autoIncrement"`
	ProjectID uint      `json:"projectId" gorm:"index:idx_snapshot_project_id"`
	CreatedAt time.Time `json:"createdAt"`
	Algorithm string    `json:"algorithm" gorm:"size:16"`
	Hash      string    `json:"hash" gorm:"size:128"`
	Regions   int       `json:"regions"`
	Lines     int       `json:"lines"`
	Points    int       `json:"points"`
}

func (*Snapshot) TableName() string {
	return "snapshots"
}
