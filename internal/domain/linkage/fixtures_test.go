package linkage

import "github.com/turtacn/CodeLink-Engine/internal/domain/catalog"

func diag(code, title string) catalog.CodeEntry {
	return catalog.CodeEntry{Code: code, Title: title, Active: true, Vocabulary: catalog.VocabularyDiagnosis}
}

func proc(code, title string) catalog.CodeEntry {
	return catalog.CodeEntry{Code: code, Title: title, Active: true, Vocabulary: catalog.VocabularyProcedure}
}

var (
	dxMandibleFx  = diag("S02.609A", "Fracture of mandible, unspecified")
	dxRadiusFx    = diag("S52.501A", "Unspecified fracture of the lower end of right radius")
	dxRadiusSeq   = diag("S52.501S", "Unspecified fracture of the lower end of right radius, sequela")
	dxTibiaFx     = diag("S82.201A", "Unspecified fracture of shaft of right tibia")
	dxFemurFx     = diag("S72.001A", "Fracture of unspecified part of neck of right femur")
	dxHypertens   = diag("I10", "Essential (primary) hypertension")
	dxDiabetes    = diag("E11.9", "Type 2 diabetes mellitus without complications")
	dxPneumonia   = diag("J15.9", "Unspecified bacterial pneumonia")
	pxRadiusORIF  = proc("25607", "Open treatment of distal radial extra-articular fracture or epiphyseal separation, with internal fixation")
	pxForearmXray = proc("73090", "Radiologic examination; forearm, 2 views")
	pxKneeTKA     = proc("27447", "Arthroplasty, knee, condyle and plateau; medial and lateral compartments")
	pxCABG        = proc("33533", "Coronary artery bypass, using arterial graft(s); single arterial graft")
	pxAmbBP       = proc("93784", "Ambulatory blood pressure monitoring, utilizing report-generating software, automated, worn continuously for 24 hours or longer")
	pxTherEx      = proc("97110", "Therapeutic procedure, 1 or more areas, each 15 minutes; therapeutic exercises to develop strength and endurance")
	pxA1C         = proc("83036", "Hemoglobin; glycosylated (A1C)")
	pxCulture     = proc("87070", "Culture, bacterial; any other source except urine, blood or stool, aerobic, with isolation")
	pxCesarean    = proc("59510", "Routine obstetric care including antepartum care, cesarean delivery, and postpartum care")
)

func sim(v float64) *float64 { return &v }
