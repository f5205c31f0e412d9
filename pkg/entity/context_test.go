package entity

import "testing"

func TestUpdateGroup(t *testing.T) {
	var nilCtx *Context
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{"nil context", nilCtx, DefaultUpdateGroup},
		{"empty group", &Context{Path: "/Orders(1)"}, DefaultUpdateGroup},
		{"explicit group", &Context{Path: "/Orders(1)", UpdateGroupID: "$auto.orders"}, "$auto.orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctx.UpdateGroup(); got != tt.want {
				t.Errorf("entity:context_test - UpdateGroup() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntitySet(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/Orders(ID=7,IsActiveEntity=true)", "Orders"},
		{"Orders(7)", "Orders"},
		{"/Orders", "Orders"},
		{"/Orders/_Items", "Orders"},
		{"", ""},
	}
	for _, tt := range tests {
		c := &Context{Path: tt.path}
		if got := c.EntitySet(); got != tt.want {
			t.Errorf("entity:context_test - EntitySet(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestProperty(t *testing.T) {
	c := &Context{
		Path: "/Orders(1)",
		Data: map[string]interface{}{
			"IsCritical": true,
			"Status":     "open",
			"_Customer": map[string]interface{}{
				"Blocked": false,
			},
		},
	}

	if v, ok := c.Property("Status"); !ok || v != "open" {
		t.Errorf("entity:context_test - Property(Status) = %v, %v", v, ok)
	}
	if v, ok := c.Property("_Customer/Blocked"); !ok || v != false {
		t.Errorf("entity:context_test - Property(_Customer/Blocked) = %v, %v", v, ok)
	}
	if _, ok := c.Property("Missing/Deep"); ok {
		t.Error("entity:context_test - expected missing path to report false")
	}
	if _, ok := c.Property("Status/Deep"); ok {
		t.Error("entity:context_test - expected path through scalar to report false")
	}
	if !c.BoolProperty("IsCritical") {
		t.Error("entity:context_test - expected BoolProperty(IsCritical) = true")
	}
	if c.BoolProperty("Status") {
		t.Error("entity:context_test - expected non-bool property to coerce to false")
	}

	var nilCtx *Context
	if _, ok := nilCtx.Property("x"); ok {
		t.Error("entity:context_test - expected nil context to report false")
	}
}
