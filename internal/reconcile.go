package internal

// ReconciliationPlan is the difference between the photo source and the
// cache. ToEmbed never contains a cached id; ToEvict only contains cached ids.
type ReconciliationPlan struct {
	ToEmbed []PhotoID
	ToEvict []PhotoID
}

func (p ReconciliationPlan) Empty() bool {
	return len(p.ToEmbed) == 0 && len(p.ToEvict) == 0
}

// Plan computes current minus cached and cached minus current. Both lists
// are sorted ascending.
func Plan(current, cached IDSet) ReconciliationPlan {
	var plan ReconciliationPlan

	toEmbed := NewIDSet()
	for id := range current {
		if !cached.Has(id) {
			toEmbed.Add(id)
		}
	}
	toEvict := NewIDSet()
	for id := range cached {
		if !current.Has(id) {
			toEvict.Add(id)
		}
	}

	plan.ToEmbed = toEmbed.Sorted()
	plan.ToEvict = toEvict.Sorted()
	return plan
}
