package anatomy

// DefaultKeywords maps each tag to trigger terms.  Terms of four characters or
// fewer must match a whole word; longer terms match at any word start, so
// stems such as "femor" cover "femoral".
func DefaultKeywords() map[Tag][]string {
	return map[Tag][]string{
		TagSkull:         {"skull", "cranium", "cranial vault", "calvari", "base of skull", "vault of skull"},
		TagMandible:      {"mandib", "jaw"},
		TagMaxilla:       {"maxill", "zygoma", "malar"},
		TagCervicalSpine: {"cervical vertebra", "cervical spine", "c-spine", "atlas", "odontoid"},
		TagThoracicSpine: {"thoracic vertebra", "thoracic spine", "t-spine"},
		TagLumbarSpine:   {"lumbar", "l-spine", "lumbosacral"},
		TagSacrum:        {"sacrum", "sacral", "coccyx"},
		TagPelvis:        {"pelvis", "pelvic ring", "acetabul", "ilium", "ischium", "pubis", "pubic ramus"},
		TagRib:           {"rib", "ribs", "flail chest"},
		TagSternum:       {"sternum", "sternal"},
		TagClavicle:      {"clavic", "collarbone"},
		TagScapula:       {"scapul", "shoulder blade", "glenoid", "acromion"},
		TagShoulder:      {"shoulder", "rotator cuff", "glenohumeral", "acromioclavicular"},
		TagHumerus:       {"humer", "upper arm"},
		TagElbow:         {"elbow", "olecranon"},
		TagRadius:        {"radius", "radial", "colles"},
		TagUlna:          {"ulna", "ulnar"},
		TagForearm:       {"forearm"},
		TagWrist:         {"wrist", "carpal", "scaphoid", "lunate"},
		TagHand:          {"hand", "hands", "metacarp"},
		TagFinger:        {"finger", "thumb", "phalanx of finger"},
		TagHip:           {"hip", "hips"},
		TagFemur:         {"femur", "femor", "thigh", "intertrochanter", "subtrochanter", "trochanter"},
		TagKnee:          {"knee", "knees", "menisc", "cruciate"},
		TagPatella:       {"patell", "kneecap"},
		TagTibia:         {"tibia", "tibial", "shin"},
		TagFibula:        {"fibula", "fibular"},
		TagAnkle:         {"ankle", "malleol", "talus", "bimalleolar", "trimalleolar"},
		TagFoot:          {"foot", "feet", "metatars", "calcane", "tarsal"},
		TagToe:           {"toe", "toes", "hallux", "great toe"},
		TagHeart:         {"heart", "cardiac", "coronary", "myocard", "atrial", "ventricular", "cardiomyopath", "pericard", "valve"},
		TagLung:          {"lung", "lungs", "pulmonary", "pneumon", "bronch", "pleura"},
		TagBrain:         {"brain", "cerebr", "intracranial", "encephal"},
		TagLiver:         {"liver", "hepat", "cirrhosis"},
		TagKidney:        {"kidney", "kidneys", "renal", "nephr"},
		TagEye:           {"eye", "eyes", "ocular", "retina", "cornea", "glaucoma", "cataract"},
	}
}

// DefaultAntiTerms lists, per tag, phrases that contain one of the tag's
// keywords without naming the site.  A keyword inside an anti-term does not
// count.
func DefaultAntiTerms() map[Tag][]string {
	return map[Tag][]string{
		TagRadius: {"radial artery", "radial arteries", "radial nerve", "radial keratotomy", "radial scar"},
		TagUlna:   {"ulnar artery", "ulnar nerve"},
		TagHand:   {"hand-held", "hand held", "handheld", "hand-assisted", "hand assisted", "by hand"},
		TagTibia:  {"tibial artery", "tibial nerve"},
		TagFibula: {"fibular artery"},
		TagHeart:  {"heart rate"},
		TagAnkle:  {"ankle-brachial", "ankle brachial"},
	}
}

// PrefixRule maps a diagnosis code prefix (dots removed) to a tag.
type PrefixRule struct {
	Prefix string
	Tag    Tag
}

// DefaultDiagnosisPrefixes is the diagnosis code-range table.  The longest
// matching prefix wins.
func DefaultDiagnosisPrefixes() []PrefixRule {
	rules := []PrefixRule{
		{"S020", TagSkull}, {"S021", TagSkull},
		{"S024", TagMaxilla},
		{"S026", TagMandible},
		{"S12", TagCervicalSpine},
		{"S220", TagThoracicSpine},
		{"S222", TagSternum},
		{"S223", TagRib}, {"S224", TagRib},
		{"S320", TagLumbarSpine},
		{"S321", TagSacrum}, {"S322", TagSacrum},
		{"S323", TagPelvis}, {"S324", TagPelvis}, {"S325", TagPelvis},
		{"S326", TagPelvis}, {"S328", TagPelvis},
		{"S420", TagClavicle},
		{"S421", TagScapula},
		{"S422", TagHumerus}, {"S423", TagHumerus}, {"S424", TagHumerus},
		{"S520", TagUlna}, {"S522", TagUlna}, {"S526", TagUlna},
		{"S521", TagRadius}, {"S523", TagRadius}, {"S525", TagRadius},
		{"S620", TagWrist}, {"S621", TagWrist},
		{"S622", TagHand}, {"S623", TagHand},
		{"S625", TagFinger}, {"S626", TagFinger},
		{"S72", TagFemur},
		{"S820", TagPatella},
		{"S821", TagTibia}, {"S822", TagTibia}, {"S823", TagTibia},
		{"S824", TagFibula},
		{"S825", TagAnkle}, {"S826", TagAnkle},
		{"S920", TagFoot}, {"S921", TagFoot}, {"S922", TagFoot}, {"S923", TagFoot},
		{"S924", TagToe}, {"S925", TagToe},
		{"I50", TagHeart},
		{"J", TagLung},
		{"N17", TagKidney}, {"N18", TagKidney}, {"N19", TagKidney},
		{"M16", TagHip},
		{"M17", TagKnee},
		{"H0", TagEye}, {"H1", TagEye}, {"H2", TagEye}, {"H3", TagEye},
		{"H4", TagEye}, {"H5", TagEye},
	}
	for _, p := range []string{"I20", "I21", "I22", "I23", "I24", "I25"} {
		rules = append(rules, PrefixRule{p, TagHeart})
	}
	for _, p := range []string{"I60", "I61", "I62", "I63", "I64", "I65", "I66", "I67", "I68", "I69"} {
		rules = append(rules, PrefixRule{p, TagBrain})
	}
	for _, p := range []string{"K70", "K71", "K72", "K73", "K74", "K75", "K76", "K77"} {
		rules = append(rules, PrefixRule{p, TagLiver})
	}
	return rules
}

// Band maps an inclusive numeric procedure code range to tags.
type Band struct {
	Low, High int
	Tags      []Tag
}

func band(lo, hi int, tags ...Tag) Band { return Band{Low: lo, High: hi, Tags: tags} }

// DefaultProcedureBands is the procedure code-range table, searched in order.
func DefaultProcedureBands() []Band {
	return []Band{
		// Musculoskeletal surgery.
		band(21421, 21436, TagMaxilla),
		band(21450, 21470, TagMandible),
		band(21800, 21810, TagRib),
		band(21820, 21825, TagSternum),
		band(23470, 23474, TagShoulder),
		band(23500, 23515, TagClavicle),
		band(23570, 23585, TagScapula),
		band(23600, 23630, TagHumerus),
		band(23650, 23680, TagShoulder),
		band(24500, 24582, TagHumerus),
		band(24600, 24640, TagElbow),
		band(24650, 24666, TagRadius),
		band(24670, 24685, TagUlna),
		band(25500, 25526, TagRadius),
		band(25530, 25545, TagUlna),
		band(25560, 25575, TagForearm),
		band(25600, 25609, TagRadius),
		band(25622, 25652, TagWrist),
		band(25660, 25695, TagWrist),
		band(26600, 26615, TagHand),
		band(26720, 26785, TagFinger),
		band(27125, 27138, TagHip),
		band(27200, 27228, TagPelvis),
		band(27230, 27248, TagFemur),
		band(27250, 27266, TagHip),
		band(27440, 27447, TagKnee),
		band(27486, 27488, TagKnee),
		band(27500, 27514, TagFemur),
		band(27520, 27524, TagPatella),
		band(27530, 27540, TagTibia),
		band(27550, 27566, TagKnee),
		band(27750, 27759, TagTibia),
		band(27760, 27766, TagAnkle),
		band(27780, 27784, TagFibula),
		band(27786, 27829, TagAnkle),
		band(28400, 28485, TagFoot),
		band(28490, 28525, TagToe),
		// Cardiovascular surgery and cardiology.
		band(33010, 37799, TagHeart),
		band(92920, 93799, TagHeart),
		// Diagnostic radiology.
		band(70100, 70110, TagMandible),
		band(70450, 70470, TagBrain),
		band(71045, 71275, TagLung),
		band(72040, 72052, TagCervicalSpine),
		band(72070, 72074, TagThoracicSpine),
		band(72100, 72120, TagLumbarSpine),
		band(73000, 73000, TagClavicle),
		band(73010, 73010, TagScapula),
		band(73020, 73030, TagShoulder),
		band(73060, 73060, TagHumerus),
		band(73070, 73080, TagElbow),
		band(73090, 73090, TagForearm),
		band(73100, 73110, TagWrist),
		band(73120, 73130, TagHand),
		band(73140, 73140, TagFinger),
		band(73501, 73523, TagHip),
		band(73551, 73552, TagFemur),
		band(73560, 73565, TagKnee),
		band(73590, 73590, TagTibia, TagFibula),
		band(73600, 73610, TagAnkle),
		band(73620, 73650, TagFoot),
		band(73660, 73660, TagToe),
	}
}

// Pair is an unordered couple of tags treated as anatomically compatible.
type Pair struct {
	A, B Tag
}

// DefaultRelated lists interchangeable site pairs.  Clavicle/humerus and
// femur/knee are not related.
func DefaultRelated() []Pair {
	return []Pair{
		{TagRadius, TagForearm},
		{TagUlna, TagForearm},
		{TagRadius, TagWrist},
		{TagTibia, TagFibula},
		{TagAnkle, TagTibia},
		{TagAnkle, TagFibula},
		{TagHand, TagFinger},
		{TagFoot, TagToe},
		{TagHip, TagFemur},
		{TagHip, TagPelvis},
	}
}
