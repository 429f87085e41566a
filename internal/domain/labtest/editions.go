package labtest

import (
	"fmt"
	"sort"
)

// DefaultEdition is the catalog used when none is configured.
const DefaultEdition = "opd-standard"

// bloodPressureRule accepts a systolic/diastolic reading such as 120/80.
var bloodPressureRule = MustRule(KindFreeText, `\d{2,3}/\d{2,3}`, "Use systolic/diastolic, e.g. 120/80")

func header(name string) Entry {
	return Entry{Name: name, Category: true, Rule: AcceptAll}
}

func decimal(name, unit, recommended string) Entry {
	return Entry{Name: name, Unit: unit, Recommended: recommended, Rule: DecimalRule}
}

func integer(name, unit, recommended string) Entry {
	return Entry{Name: name, Unit: unit, Recommended: recommended, Rule: IntegerRule}
}

func gendered(name, unit, male, female string) Entry {
	return Entry{Name: name, Unit: unit, RecommendedMale: male, RecommendedFemale: female, Rule: DecimalRule}
}

func text(name, unit, recommended string) Entry {
	return Entry{Name: name, Unit: unit, Recommended: recommended, Rule: TextRule}
}

// opdStandard is the full OPD laboratory panel.
var opdStandard = []Entry{
	header("CBC:"),
	gendered("Hb.", "gm/dl", "13 - 18", "11.5 - 16"),
	decimal("T.L.C.", "cells/cumm", "4000 - 11000"),
	decimal("D.L.C.: POLYMORPH", "%", "40 - 75"),
	decimal("D.L.C.: LYMPHOCYTE", "%", "20 - 45"),
	decimal("D.L.C.: MONOCYTE", "%", "02 - 10"),
	decimal("D.L.C.: EOSINOPHIL", "%", "01 - 06"),
	decimal("D.L.C.: BASOPHIL", "%", "00 - 01"),
	gendered("ESR (Westergren)", "mm/hr", "0 - 10", "0 - 12"),
	gendered("ESR (Wintrobe's)", "mm/hr", "0 - 10", "0 - 20"),
	gendered("RBC Count", "millions cells/cumm", "4.5 - 6.0 millions", "3.8 - 5.8 millions"),
	gendered("PCV", "%", "40 - 54", "37 - 47"),
	decimal("MCV", "cu.micro.meter", "76 - 96"),
	decimal("MCH", "picogram", "27 - 32"),
	decimal("MCHC", "gm/dl", "30 - 36"),
	decimal("PLATELET COUNT", "lakhs/cumm", "1.5 - 4.6 lakhs/cumm"),
	gendered("RDW-SD", "fl", "33.4 - 49.2", "35.3 - 48.9"),
	decimal("RETIC. COUNT", "%", "0.5 - 2.5"),
	decimal("Abs Eosin Count (AEC)", "cells/micro.lt", "40 - 440"),

	header("COAGULATION:"),
	decimal("Bleeding Time (BT)", "minutes", "02 - 07"),
	decimal("Clotting Time (CT)", "minutes", "02 - 06"),
	decimal("Prothrombin Time (PT)", "seconds", "11 - 16"),
	decimal("CONTROL", "seconds", ""),
	decimal("INR", "", ""),
	text("Blood Group", "", ""),
	text("Rh Typing", "", ""),

	header("BLOOD SUGAR:"),
	decimal("GLUCOSE. F", "mg/dl", "70 - 110"),
	decimal("GLUCOSE. PP", "mg/dl", "70 - 140"),
	decimal("GLUCOSE. R", "mg/dl", "70 - 160"),

	header("KIDNEY FUNCTION TEST (KFT):"),
	decimal("BUN", "mg/dl", "6.0 - 21"),
	decimal("CREATININE", "mg/dl", "0.6 - 1.4"),
	gendered("URIC ACID", "mg/dl", "3.5 - 7.2", "2.5 - 6.2"),

	header("LIPID PROFILE:"),
	decimal("CHOLESTEROL", "mg/dl", "130 - 220"),
	decimal("TRIGLYCERIDES", "mg/dl", "35 - 160"),
	decimal("HDL CHOLESTEROL", "mg/dl", "35 - 65"),
	decimal("LDL CHOLESTEROL", "mg/dl", "< 100"),
	decimal("VLDL CHOLESTEROL", "mg/dl", "2.0 - 30.0"),

	header("LIVER FUNCTION TEST (LFT):"),
	decimal("BILIRUBIN. T", "mg/dl", "0.2 - 1.2"),
	decimal("BILIRUBIN. D", "mg/dl", "0.0 - 0.3"),
	decimal("SGOT/AST", "IU/L", "8 - 37"),
	decimal("SGPT/ALT.", "IU/L", "6 - 40"),
	decimal("ALK. P. TASE", "IU/L", "Adult: 15 - 112, Children: 117 - 390"),
	gendered("GAMMA GT", "U/L", "< 55", "< 38"),
	decimal("TOTAL PROTEIN", "gm/dl", "6.0 - 8.0"),
	decimal("ALBUMIN", "gm/dl", "3.5 - 5.2"),
	decimal("GLOBULIN", "gm/dl", "2.0 - 3.5"),
	text("A/G RATIO", "", ""),
	decimal("CRP", "mg/L", "< 5.0 mg/L"),
}

// opdScreening is a short screening panel with vitals.
var opdScreening = []Entry{
	header("VITALS:"),
	{Name: "Blood Pressure", Unit: "mmHg", Recommended: "120/80", Rule: bloodPressureRule},
	integer("Pulse", "bpm", "60 - 100"),
	decimal("Temperature", "°F", "97.0 - 99.0"),
	integer("SpO2", "%", "95 - 100"),
	decimal("BMI", "kg/m2", "18.5 - 24.9"),

	header("SCREENING:"),
	gendered("Hb.", "gm/dl", "13 - 18", "11.5 - 16"),
	decimal("GLUCOSE. R", "mg/dl", "70 - 160"),
	decimal("CHOLESTEROL", "mg/dl", "130 - 220"),
	decimal("CREATININE", "mg/dl", "0.6 - 1.4"),
	text("Urine Routine", "", "Normal"),
}

var editions = map[string][]Entry{
	"opd-standard":  opdStandard,
	"opd-screening": opdScreening,
}

// Editions returns the names of all shipped catalog editions, sorted.
func Editions() []string {
	names := make([]string, 0, len(editions))
	for name := range editions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadEdition builds the catalog for the named edition.
func LoadEdition(name string) (*Catalog, error) {
	entries, ok := editions[name]
	if !ok {
		return nil, fmt.Errorf("unknown catalog edition %q (available: %v)", name, Editions())
	}
	return NewCatalog(name, entries)
}
