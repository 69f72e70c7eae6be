package invoice

import (
	"testing"

	"ai-invoice-agent-service/internal/models"
)

func TestMerge_DedupByName(t *testing.T) {
	s := NewSession(85)

	added := s.Merge([]models.InvoiceItem{
		{ID: 1, Name: "Oil Filter", Price: 8, Type: models.ItemPart},
	})
	if len(added) != 1 {
		t.Fatalf("first merge added %d items, want 1", len(added))
	}

	// Same part re-sighted (different case) plus a genuinely new one: only the
	// new one is appended, the existing line stays exactly as it was.
	added = s.Merge([]models.InvoiceItem{
		{ID: 2, Name: "oil filter", Price: 12, Type: models.ItemPart, Description: "Replaced oil filter"},
		{ID: 3, Name: "Brake Pad", Price: 45, Type: models.ItemPart},
	})
	if len(added) != 1 || added[0].Name != "Brake Pad" {
		t.Fatalf("second merge added %v, want only Brake Pad", added)
	}

	items := s.Items()
	if len(items) != 2 {
		t.Fatalf("invoice has %d items, want 2", len(items))
	}
	existing := items[0]
	if existing.ID != 1 || existing.Price != 8 || existing.Description != "" {
		t.Errorf("existing item mutated by merge: %+v", existing)
	}
}

func TestMerge_PreservesFreedItem(t *testing.T) {
	s := NewSession(85)
	s.Merge([]models.InvoiceItem{{ID: 1, Name: "Oil Filter", Price: 8, Type: models.ItemPart}})
	s.SetFree(1)

	// The extractor re-emits the same part on later passes; the freed line
	// must stay free and Restore must still return the original price.
	added := s.Merge([]models.InvoiceItem{{ID: 2, Name: "oil filter", Price: 12, Type: models.ItemPart}})
	if len(added) != 0 {
		t.Fatalf("re-merge added %d items, want 0", len(added))
	}
	if got := s.Items()[0].Price; got != 0 {
		t.Errorf("freed item price = %v, want 0", got)
	}
	if item, _ := s.Restore(1); item.Price != 8 {
		t.Errorf("Restore price = %v, want 8", item.Price)
	}
}

func TestTotal_AlwaysSumOfItems(t *testing.T) {
	s := NewSession(85)

	s.Merge([]models.InvoiceItem{
		{ID: 1, Name: "Engine Mount", Price: 45, Type: models.ItemPart},
		{ID: 2, Name: "Brake Pad", Price: 45, Type: models.ItemPart},
	})
	s.AddLaborHours(2, "mount and pads")

	check := func(stage string) {
		t.Helper()
		var want float64
		for _, item := range s.Items() {
			want += item.Price
		}
		if got := s.Total(); got != want {
			t.Errorf("%s: Total() = %v, items sum to %v", stage, got, want)
		}
	}

	check("after merge and labor")
	if got := s.Total(); got != 260 {
		t.Errorf("Total = %v, want 260", got)
	}

	item, ok := s.SetFree(1)
	if !ok || item.Price != 0 {
		t.Fatalf("SetFree: ok=%v price=%v", ok, item.Price)
	}
	check("after free")

	s.Restore(1)
	check("after restore")

	s.Remove(2)
	check("after remove")
}

func TestFreeRestoreRoundTrip(t *testing.T) {
	s := NewSession(85)
	s.Merge([]models.InvoiceItem{{ID: 7, Name: "Alternator", Price: 180, Type: models.ItemPart}})

	if item, _ := s.SetFree(7); item.Price != 0 {
		t.Fatalf("SetFree price = %v, want 0", item.Price)
	}
	// Double-free keeps the remembered price.
	s.SetFree(7)
	if item, _ := s.Restore(7); item.Price != 180 {
		t.Errorf("Restore price = %v, want 180", item.Price)
	}
	// Restoring a never-freed item changes nothing.
	if item, _ := s.Restore(7); item.Price != 180 {
		t.Errorf("second Restore price = %v, want 180", item.Price)
	}
}

func TestRestore_LaborRecomputesFromHours(t *testing.T) {
	s := NewSession(85)
	if s.LaborRate() != 85 {
		t.Fatalf("LaborRate = %v, want 85", s.LaborRate())
	}
	labor := s.AddLaborHours(1.5, "diagnostics")

	s.SetFree(labor.ID)
	item, ok := s.Restore(labor.ID)
	if !ok {
		t.Fatal("labor item not found")
	}
	if item.Price != 127.5 {
		t.Errorf("restored labor price = %v, want 1.5h * 85 = 127.5", item.Price)
	}
}

func TestRemove(t *testing.T) {
	s := NewSession(85)
	s.Merge([]models.InvoiceItem{{ID: 1, Name: "Oil Filter", Price: 8, Type: models.ItemPart}})

	if _, ok := s.Remove(99); ok {
		t.Error("Remove of unknown ID reported success")
	}
	removed, ok := s.Remove(1)
	if !ok || removed.Name != "Oil Filter" {
		t.Fatalf("Remove: ok=%v name=%q", ok, removed.Name)
	}
	if len(s.Items()) != 0 {
		t.Errorf("invoice not empty after remove")
	}
}

func TestSetLaborDescription(t *testing.T) {
	s := NewSession(85)
	labor := s.AddLaborHours(1, "initial")

	item, ok := s.SetLaborDescription(labor.ID, "Replaced engine mount and brake pads")
	if !ok {
		t.Fatal("labor item not found")
	}
	if item.LaborDescription != "Replaced engine mount and brake pads" {
		t.Errorf("LaborDescription = %q", item.LaborDescription)
	}
}

func TestReset(t *testing.T) {
	s := NewSession(85)
	s.Merge([]models.InvoiceItem{{ID: 1, Name: "Engine Mount", Price: 45, Type: models.ItemPart}})
	s.SetFree(1)
	s.Reset()

	if len(s.Items()) != 0 || s.Total() != 0 {
		t.Errorf("Reset left %d items, total %v", len(s.Items()), s.Total())
	}
}
