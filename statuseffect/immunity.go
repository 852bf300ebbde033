// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package statuseffect

// immunityInfo tracks the immunities granted to one target by its
// currently active effects, reference-counted so that two different
// instances granting the same immunity don't clobber each other on
// removal.
type immunityInfo struct {
	categoryRefs map[DispelCategory]int
	idRefs       map[uint64]int
}

func newImmunityInfo() *immunityInfo {
	return &immunityInfo{
		categoryRefs: make(map[DispelCategory]int),
		idRefs:       make(map[uint64]int),
	}
}

func (info *immunityInfo) grant(def Definition) {
	for _, cat := range def.GrantedImmunityCategories {
		info.categoryRefs[cat]++
	}
	for _, id := range def.GrantedImmunityIDs {
		info.idRefs[id]++
	}
}

func (info *immunityInfo) withdraw(def Definition) {
	for _, cat := range def.GrantedImmunityCategories {
		info.categoryRefs[cat]--
		if info.categoryRefs[cat] <= 0 {
			delete(info.categoryRefs, cat)
		}
	}
	for _, id := range def.GrantedImmunityIDs {
		info.idRefs[id]--
		if info.idRefs[id] <= 0 {
			delete(info.idRefs, id)
		}
	}
}

func (info *immunityInfo) immuneToCategory(cat DispelCategory) bool {
	return info.categoryRefs[cat] > 0
}

func (info *immunityInfo) immuneToID(id uint64) bool {
	return info.idRefs[id] > 0
}

func (info *immunityInfo) empty() bool {
	return len(info.categoryRefs) == 0 && len(info.idRefs) == 0
}
