package regpay

import "github.com/blnkfinance/regpay/model"

// Project splits the outcome of a committed registration into the children
// that are current afterwards and the ones it superseded. It reads only its
// arguments.
func Project(reg *model.Registration, snapshot *model.Snapshot, commit *model.RegistrationCommit) *model.Projection {
	p := &model.Projection{Registration: reg}
	if snapshot == nil {
		p.Current = model.Children{
			OwnerGroups: reg.OwnerGroups,
			Locations:   reg.Locations,
			Collateral:  reg.Collateral,
		}
		return p
	}

	before := snapshot.Children
	for _, g := range before.OwnerGroups {
		if containsID(commit.SupersededGroups, g.GroupID) {
			g.Status = model.ChildStatusPrevious
			p.Previous.OwnerGroups = append(p.Previous.OwnerGroups, g)
			continue
		}
		p.Current.OwnerGroups = append(p.Current.OwnerGroups, g)
	}
	p.Current.OwnerGroups = append(p.Current.OwnerGroups, reg.OwnerGroups...)

	for _, l := range before.Locations {
		if commit.SupersedeLocations {
			l.Status = model.ChildStatusPrevious
			p.Previous.Locations = append(p.Previous.Locations, l)
			continue
		}
		p.Current.Locations = append(p.Current.Locations, l)
	}
	p.Current.Locations = append(p.Current.Locations, reg.Locations...)

	for _, c := range before.Collateral {
		if containsID(commit.SupersededCollateral, c.CollateralID) {
			c.Status = model.ChildStatusPrevious
			p.Previous.Collateral = append(p.Previous.Collateral, c)
			continue
		}
		p.Current.Collateral = append(p.Current.Collateral, c)
	}
	p.Current.Collateral = append(p.Current.Collateral, reg.Collateral...)
	return p
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
