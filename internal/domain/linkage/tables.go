package linkage

func bands(pairs ...int) []CodeBand {
	out := make([]CodeBand, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, CodeBand{Low: pairs[i], High: pairs[i+1]})
	}
	return out
}

func prefixRange(letter string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for n := from; n <= to; n++ {
		d := []byte{byte('0' + n/10), byte('0' + n%10)}
		out = append(out, letter+string(d))
	}
	return out
}

// DefaultProfileTables returns the built-in inference data.  Procedure bands
// follow the CPT section layout; diagnosis prefixes follow ICD-10-CM
// chapters.
func DefaultProfileTables() ProfileTables {
	return ProfileTables{
		DiagnosisDomainKeywords: map[Domain][]string{
			DomainCardiovascular: {"heart", "cardiac", "cardio", "coronary", "myocard", "hypertens", "atrial", "arrhythm", "angina", "aortic", "vascular"},
			DomainObstetric:      {"pregnan", "obstetric", "gestation", "puerper", "postpartum", "antepartum", "preterm labor", "labor and delivery", "eclampsia", "preeclampsia", "fetus"},
			DomainNeurological:   {"brain", "cerebr", "epilep", "seizure", "migraine", "parkinson", "neuropath", "multiple sclerosis", "dementia", "alzheimer", "stroke", "intracranial", "spinal cord"},
			DomainCongenital:     {"congenital"},
			DomainAbdominal:      {"abdomen", "abdominal", "append", "hernia", "cholecyst", "gallbladder", "bowel", "intestin", "colon", "gastr", "hepat", "liver", "pancrea", "peritone", "diverticul"},
		},
		DiagnosisDomainPrefixes: map[Domain][]string{
			DomainCardiovascular: {"I"},
			DomainObstetric:      {"O"},
			DomainNeurological:   append([]string{"G"}, prefixRange("I", 60, 69)...),
			DomainCongenital:     {"Q"},
			DomainAbdominal:      append([]string{"K", "R10"}, prefixRange("C", 15, 26)...),
		},
		ProcedureDomainKeywords: map[Domain][]string{
			DomainCardiovascular: {"heart", "cardiac", "coronary", "echocardiograph", "electrocardiogra", "pacemaker", "defibrillator", "angioplasty", "cardioversion", "valve"},
			DomainObstetric:      {"obstetric", "cesarean", "vaginal delivery", "antepartum", "postpartum", "fetal", "amniocentesis", "pregnan"},
			DomainNeurological:   {"craniotomy", "craniectomy", "neurostimulator", "electroencephalogra", "nerve conduction", "spinal cord", "brain", "cerebr", "intracranial"},
			DomainCongenital:     {"congenital"},
			DomainAbdominal:      {"appendectomy", "cholecystectomy", "hernia", "colectomy", "laparotomy", "laparoscop", "gastr", "bowel", "intestin", "abdom", "hepatectomy", "colonoscop", "peritone", "esophag"},
		},
		ProcedureDomainBands: map[Domain][]CodeBand{
			DomainCardiovascular: bands(33010, 37799, 92920, 93799),
			DomainObstetric:      bands(59000, 59899),
			DomainNeurological:   bands(61000, 62258, 95700, 96020),
			DomainAbdominal:      bands(40490, 49999),
		},

		DiagnosisClassKeywords: map[Class][]string{
			ClassFracture:   {"fracture"},
			ClassEndocrine:  {"diabetes", "thyroid", "hypothyroid", "hyperthyroid", "thyrotoxicosis", "adrenal", "pituitar", "endocrine", "hormone", "cushing"},
			ClassInfectious: {"infection", "infectious", "sepsis", "bacterial", "viral", "tuberculosis", "pneumonia", "cellulitis", "abscess", "osteomyelitis"},
			ClassChronic:    {"chronic", "hypertension", "hypertensive", "diabetes", "heart failure", "asthma", "hyperlipidemia", "copd"},
			ClassSequela:    {"sequela", "sequelae", "late effect"},
		},
		DiagnosisClassPrefixes: map[Class][]string{
			ClassEndocrine:  {"E0", "E1", "E2", "E3"},
			ClassInfectious: {"A", "B"},
			ClassChronic:    {"I10", "I11", "I12", "I13", "I15", "I16", "E11", "N18", "J44", "J45", "I50"},
		},
		ProcedureClassKeywords: map[Class][]string{
			ClassSurgicalRepair:  {"repair", "fixation", "open treatment", "closed treatment", "arthroplasty", "osteotomy", "arthrodesis", "reconstruction", "replacement"},
			ClassImaging:         {"radiologic", "x-ray", "imaging", "computed tomograph", "ct", "mri", "magnetic resonance", "ultrasound", "echocardiograph"},
			ClassLaboratory:      {"assay", "laboratory", "quantitative", "qualitative"},
			ClassHormonePanel:    {"thyroid", "tsh", "thyroxine", "hormone", "cortisol", "insulin", "hemoglobin a1c", "a1c", "glycated", "glycosylated", "glucose", "parathormone"},
			ClassCulture:         {"culture", "pathogen", "susceptibility", "infectious agent", "smear"},
			ClassMonitoringPanel: {"panel", "monitoring", "lipid", "ambulatory blood pressure", "care management", "chronic care"},
			ClassFollowupRehab:   {"physical therapy", "occupational therapy", "therapeutic exercise", "rehabilitation", "re-evaluation", "follow-up", "gait training"},
		},
		ProcedureClassBands: map[Class][]CodeBand{
			ClassSurgicalRepair:  bands(20100, 29999),
			ClassImaging:         bands(70010, 79999, 93303, 93356),
			ClassLaboratory:      bands(80047, 89398),
			ClassHormonePanel:    bands(80418, 80439),
			ClassCulture:         bands(87003, 87999),
			ClassMonitoringPanel: bands(80047, 80081, 93784, 93790, 99487, 99491),
			ClassFollowupRehab:   bands(97010, 97799),
		},
	}
}
