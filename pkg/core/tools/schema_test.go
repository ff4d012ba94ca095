package tools

import (
	"reflect"
	"testing"
)

func TestSchemaForStruct(t *testing.T) {
	type input struct {
		Location string   `json:"location" desc:"City name"`
		Units    string   `json:"units,omitempty" desc:"Temperature units" enum:"celsius,fahrenheit"`
		Days     int      `json:"days,omitempty"`
		Detailed *bool    `json:"detailed"`
		Tags     []string `json:"tags,omitempty"`
	}

	schema := SchemaFor[input]()
	if schema.Type != "object" {
		t.Fatalf("type = %q, want object", schema.Type)
	}
	if len(schema.Properties) != 5 {
		t.Fatalf("properties = %d, want 5", len(schema.Properties))
	}

	loc := schema.Properties["location"]
	if loc.Type != "string" || loc.Description != "City name" {
		t.Errorf("location = %+v", loc)
	}

	units := schema.Properties["units"]
	if !reflect.DeepEqual(units.Enum, []string{"celsius", "fahrenheit"}) {
		t.Errorf("units enum = %v", units.Enum)
	}

	if schema.Properties["days"].Type != "integer" {
		t.Errorf("days type = %q", schema.Properties["days"].Type)
	}
	if schema.Properties["tags"].Type != "array" {
		t.Errorf("tags type = %q", schema.Properties["tags"].Type)
	}
	if items := schema.Properties["tags"].Items; items == nil || items.Type != "string" {
		t.Errorf("tags items = %+v", items)
	}

	// omitempty and pointer fields are optional.
	if !reflect.DeepEqual(schema.Required, []string{"location"}) {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestSchemaForEmptyStruct(t *testing.T) {
	schema := SchemaFor[struct{}]()
	if schema.Type != "object" {
		t.Errorf("type = %q, want object", schema.Type)
	}
	if len(schema.Properties) != 0 {
		t.Errorf("properties = %d, want 0", len(schema.Properties))
	}
}

func TestSchemaSkipsUnexportedAndDashFields(t *testing.T) {
	type input struct {
		Visible string `json:"visible"`
		Hidden  string `json:"-"`
		secret  string
	}
	_ = input{secret: ""}

	schema := SchemaFor[input]()
	if len(schema.Properties) != 1 {
		t.Fatalf("properties = %v", schema.Properties)
	}
	if _, ok := schema.Properties["visible"]; !ok {
		t.Error("visible field missing")
	}
}
