// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

import (
	"strings"

	"go.uber.org/zap"
)

// Object is the polymorphic surface shared by the eight catalog kinds:
// a natural identifier, the reference keys the object cites, and the
// kind tag the transformer dispatches on.
type Object interface {
	Kind() Kind
	// ID returns the object's natural identifier within its kind.
	ID() string
	// ReferenceKeys returns the citation keys the object carries.
	ReferenceKeys() []string
}

// Mission is the MISSION catalog variant.
type Mission struct {
	Name              string
	StartDate         Value
	StopDate          Value
	AliasName         string
	Desc              string
	ObjectivesSummary string
	Host              MissionHost
	References        []string
	Extra             Properties
	Unrecognized      []Block
}

// MissionHost is the MISSION_HOST sub-object with its targets.
type MissionHost struct {
	InstrumentHostID string
	Targets          []string
	Extra            Properties
}

func (m *Mission) Kind() Kind              { return KindMission }
func (m *Mission) ID() string              { return m.Name }
func (m *Mission) ReferenceKeys() []string { return m.References }

// InstrumentHost is the INSTRUMENT_HOST catalog variant.
type InstrumentHost struct {
	InstrumentHostID string
	Name             string
	Type             string
	Desc             string
	References       []string
	Extra            Properties
	Unrecognized     []Block
}

func (h *InstrumentHost) Kind() Kind              { return KindInstrumentHost }
func (h *InstrumentHost) ID() string              { return h.InstrumentHostID }
func (h *InstrumentHost) ReferenceKeys() []string { return h.References }

// Instrument is the INSTRUMENT catalog variant. Identity is the pair
// instrument id + instrument host id.
type Instrument struct {
	InstrumentID     string
	InstrumentHostID string
	Name             string
	Type             string
	Desc             string
	References       []string
	Extra            Properties
	Unrecognized     []Block
}

func (i *Instrument) Kind() Kind { return KindInstrument }
func (i *Instrument) ID() string {
	return i.InstrumentID + "+" + i.InstrumentHostID
}
func (i *Instrument) ReferenceKeys() []string { return i.References }

// DataSet is the DATA_SET catalog variant.
type DataSet struct {
	DataSetID        string
	Name             string
	ReleaseDate      Value
	StartTime        Value
	StopTime         Value
	Desc             string
	TerseDesc        string
	CitationDesc     string
	AbstractDesc     string
	ConfidenceNote   string
	ProducerFullName []string
	Targets          []string
	Host             DataSetHost
	MissionName      string
	References       []string
	Extra            Properties
	Unrecognized     []Block
}

// DataSetHost is the DATA_SET_HOST sub-object.
type DataSetHost struct {
	InstrumentHostID string
	InstrumentIDs    []string
	Extra            Properties
}

func (d *DataSet) Kind() Kind              { return KindDataSet }
func (d *DataSet) ID() string              { return d.DataSetID }
func (d *DataSet) ReferenceKeys() []string { return d.References }

// DataSetMapProjection is the DATA_SET_MAP_PROJECTION catalog variant.
type DataSetMapProjection struct {
	DataSetID            string
	ProjectionType       string
	ProjectionDesc       string
	RotationalDesc       string
	References           []string
	Extra                Properties
	Unrecognized         []Block
}

func (p *DataSetMapProjection) Kind() Kind              { return KindDataSetMapProjection }
func (p *DataSetMapProjection) ID() string              { return p.DataSetID }
func (p *DataSetMapProjection) ReferenceKeys() []string { return p.References }

// Person is one PERSONNEL record.
type Person struct {
	PDSUserID        string
	FullName         string
	LastName         string
	Institution      string
	RegistrationDate Value
	AddressText      string
	Telephone        string
	Emails           []string
	Extra            Properties
	Unrecognized     []Block
}

var _ = []Object{
	(*Mission)(nil), (*InstrumentHost)(nil), (*Instrument)(nil),
	(*DataSet)(nil), (*DataSetMapProjection)(nil), (*Personnel)(nil),
	(*Reference)(nil), (*VolumeDescriptor)(nil),
}

// Personnel is the PERSONNEL catalog variant; the file carries one or
// many person records.
type Personnel struct {
	Persons []Person
}

func (p *Personnel) Kind() Kind { return KindPersonnel }
func (p *Personnel) ID() string {
	if len(p.Persons) == 1 {
		return p.Persons[0].PDSUserID
	}
	return "personnel"
}
func (p *Personnel) ReferenceKeys() []string { return nil }

// Citation is one REFERENCE record.
type Citation struct {
	ReferenceKeyID string
	Desc           string
	Extra          Properties
}

// Reference is the REFERENCE catalog variant; one or many citations.
type Reference struct {
	Citations []Citation
}

func (r *Reference) Kind() Kind { return KindReference }
func (r *Reference) ID() string {
	if len(r.Citations) == 1 {
		return r.Citations[0].ReferenceKeyID
	}
	return "reference"
}
func (r *Reference) ReferenceKeys() []string {
	keys := make([]string, 0, len(r.Citations))
	for _, c := range r.Citations {
		keys = append(keys, c.ReferenceKeyID)
	}
	return keys
}

// Agent is a DATA_PRODUCER or DATA_SUPPLIER sub-object.
type Agent struct {
	InstitutionName string
	FacilityName    string
	FullName        string
	AddressText     string
	Email           string
	Extra           Properties
}

// VolumeFile is a FILE sub-object of a volume descriptor.
type VolumeFile struct {
	Name  string
	Extra Properties
}

// VolumeDirectory is a DIRECTORY sub-object; directories nest.
type VolumeDirectory struct {
	Name        string
	Files       []VolumeFile
	Directories []VolumeDirectory
	Extra       Properties
}

// VolumeDescriptor is the VOLDESC.CAT variant. Its CATALOG sub-object
// names the catalog files present on the volume, which drives the
// website extractor's roster.
type VolumeDescriptor struct {
	VolumeID     string
	VolumeName   string
	DataSetID    string
	Catalog      map[Kind][]string
	Producer     Agent
	Supplier     *Agent
	Files        []VolumeFile
	Directories  []VolumeDirectory
	Extra        Properties
	Unrecognized []Block
}

func (v *VolumeDescriptor) Kind() Kind              { return KindVolumeDescriptor }
func (v *VolumeDescriptor) ID() string              { return v.VolumeID }
func (v *VolumeDescriptor) ReferenceKeys() []string { return nil }

// catalogKeywords maps CATALOG sub-object keywords to catalog kinds.
var catalogKeywords = map[string]Kind{
	"MISSION_CATALOG":                 KindMission,
	"INSTRUMENT_HOST_CATALOG":         KindInstrumentHost,
	"INSTRUMENT_CATALOG":              KindInstrument,
	"DATA_SET_CATALOG":                KindDataSet,
	"DATA_SET_MAP_PROJECTION_CATALOG": KindDataSetMapProjection,
	"PERSONNEL_CATALOG":               KindPersonnel,
	"REFERENCE_CATALOG":               KindReference,
}

// builder collects structural violations and unknown sub-objects while
// walking a document.
type builder struct {
	doc *Document
	log *zap.Logger
}

func (b *builder) warnUnknown(parent string, blocks []Block, known map[string]bool) []Block {
	var unknown []Block
	for _, sub := range blocks {
		if !known[sub.Name] {
			if b.log != nil {
				b.log.Warn("unknown sub-object preserved",
					zap.String("file", b.doc.File),
					zap.String("parent", parent),
					zap.String("object", sub.Name),
					zap.Int("line", sub.Line))
			}
			unknown = append(unknown, sub)
		}
	}
	return unknown
}

func (b *builder) one(parent Block, names ...string) (Block, error) {
	subs := parent.SubsNamed(names...)
	switch len(subs) {
	case 1:
		return subs[0], nil
	case 0:
		return Block{}, parseErr(b.doc.File, parent.Line, 1, parent.Name,
			"missing required %s", strings.Join(names, "|"))
	default:
		return Block{}, parseErr(b.doc.File, subs[1].Line, 1, names[0],
			"duplicate %s", names[0])
	}
}

func (b *builder) atMostOne(parent Block, name string) (*Block, error) {
	subs := parent.SubsNamed(name)
	switch len(subs) {
	case 0:
		return nil, nil
	case 1:
		return &subs[0], nil
	default:
		return nil, parseErr(b.doc.File, subs[1].Line, 1, name, "duplicate %s", name)
	}
}

func (b *builder) rootBlock(name string) (Block, error) {
	for _, block := range b.doc.Blocks {
		if block.Name == name {
			return block, nil
		}
	}
	line := 1
	if len(b.doc.Blocks) > 0 {
		line = b.doc.Blocks[0].Line
	}
	return Block{}, parseErr(b.doc.File, line, 1, "", "missing required OBJECT = %s", name)
}

func referenceKeys(blocks []Block) []string {
	var keys []string
	for _, block := range blocks {
		if key := block.Props.Text("REFERENCE_KEY_ID"); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func knownSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// BuildMission assembles the Mission variant, enforcing exactly one
// MISSION_INFORMATION and one MISSION_HOST with at least one target.
func BuildMission(doc *Document, log *zap.Logger) (*Mission, error) {
	b := &builder{doc: doc, log: log}
	root, err := b.rootBlock("MISSION")
	if err != nil {
		return nil, err
	}
	info, err := b.one(root, "MISSION_INFORMATION")
	if err != nil {
		return nil, err
	}
	hostBlock, err := b.one(root, "MISSION_HOST")
	if err != nil {
		return nil, err
	}
	targets := hostBlock.SubsNamed("MISSION_TARGET")
	if len(targets) == 0 {
		return nil, parseErr(doc.File, hostBlock.Line, 1, "MISSION_HOST",
			"missing required MISSION_TARGET")
	}
	host := MissionHost{
		InstrumentHostID: hostBlock.Props.Text("INSTRUMENT_HOST_ID"),
		Extra:            hostBlock.Props.Without(knownSet("INSTRUMENT_HOST_ID")),
	}
	for _, t := range targets {
		if name := t.Props.Text("TARGET_NAME"); name != "" {
			host.Targets = append(host.Targets, name)
		}
	}

	mission := &Mission{
		Name:              root.Props.Text("MISSION_NAME"),
		AliasName:         info.Props.Text("MISSION_ALIAS_NAME"),
		Desc:              info.Props.Text("MISSION_DESC"),
		ObjectivesSummary: info.Props.Text("MISSION_OBJECTIVES_SUMMARY"),
		Host:              host,
		References:        referenceKeys(root.SubsNamed("MISSION_REFERENCE_INFORMATION")),
		Extra:             root.Props.Without(knownSet("MISSION_NAME")),
	}
	mission.StartDate, _ = info.Props.Get("MISSION_START_DATE")
	mission.StopDate, _ = info.Props.Get("MISSION_STOP_DATE")

	// The archived Mars Global Surveyor file carries N/A here; repair
	// it so downstream ids stay usable.
	if mission.AliasName == "" && strings.EqualFold(mission.Name, "MARS GLOBAL SURVEYOR") {
		mission.AliasName = "MGS"
	}

	mission.Unrecognized = b.warnUnknown("MISSION", root.Subs,
		knownSet("MISSION_INFORMATION", "MISSION_HOST", "MISSION_REFERENCE_INFORMATION"))
	return mission, nil
}

// BuildInstrumentHost assembles the InstrumentHost variant.
func BuildInstrumentHost(doc *Document, log *zap.Logger) (*InstrumentHost, error) {
	b := &builder{doc: doc, log: log}
	root, err := b.rootBlock("INSTRUMENT_HOST")
	if err != nil {
		return nil, err
	}
	info, err := b.one(root, "INSTRUMENT_HOST_INFORMATION")
	if err != nil {
		return nil, err
	}
	host := &InstrumentHost{
		InstrumentHostID: root.Props.Text("INSTRUMENT_HOST_ID"),
		Name:             info.Props.Text("INSTRUMENT_HOST_NAME"),
		Type:             info.Props.Text("INSTRUMENT_HOST_TYPE"),
		Desc:             info.Props.Text("INSTRUMENT_HOST_DESC"),
		References:       referenceKeys(root.SubsNamed("INSTRUMENT_HOST_REFERENCE_INFO")),
		Extra:            root.Props.Without(knownSet("INSTRUMENT_HOST_ID")),
	}
	host.Unrecognized = b.warnUnknown("INSTRUMENT_HOST", root.Subs,
		knownSet("INSTRUMENT_HOST_INFORMATION", "INSTRUMENT_HOST_REFERENCE_INFO"))
	return host, nil
}

// BuildInstrument assembles the Instrument variant, accepting the
// INSTINFO and INSTREFINFO aliases some volumes use.
func BuildInstrument(doc *Document, log *zap.Logger) (*Instrument, error) {
	b := &builder{doc: doc, log: log}
	root, err := b.rootBlock("INSTRUMENT")
	if err != nil {
		return nil, err
	}
	info, err := b.one(root, "INSTRUMENT_INFORMATION", "INSTINFO")
	if err != nil {
		return nil, err
	}
	refs := root.SubsNamed("INSTRUMENT_REFERENCE_INFO", "INSTREFINFO")
	inst := &Instrument{
		InstrumentID:     root.Props.Text("INSTRUMENT_ID"),
		InstrumentHostID: root.Props.Text("INSTRUMENT_HOST_ID"),
		Name:             info.Props.Text("INSTRUMENT_NAME"),
		Type:             info.Props.Text("INSTRUMENT_TYPE"),
		Desc:             info.Props.Text("INSTRUMENT_DESC"),
		References:       referenceKeys(refs),
		Extra:            root.Props.Without(knownSet("INSTRUMENT_ID", "INSTRUMENT_HOST_ID")),
	}
	inst.Unrecognized = b.warnUnknown("INSTRUMENT", root.Subs,
		knownSet("INSTRUMENT_INFORMATION", "INSTINFO", "INSTRUMENT_REFERENCE_INFO", "INSTREFINFO"))
	return inst, nil
}

// BuildDataSet assembles the DataSet variant.
func BuildDataSet(doc *Document, log *zap.Logger) (*DataSet, error) {
	b := &builder{doc: doc, log: log}
	root, err := b.rootBlock("DATA_SET")
	if err != nil {
		return nil, err
	}
	info, err := b.one(root, "DATA_SET_INFORMATION")
	if err != nil {
		return nil, err
	}
	targets := root.SubsNamed("DATA_SET_TARGET")
	if len(targets) == 0 {
		return nil, parseErr(doc.File, root.Line, 1, "DATA_SET",
			"missing required DATA_SET_TARGET")
	}
	hostBlock, err := b.one(root, "DATA_SET_HOST")
	if err != nil {
		return nil, err
	}
	missionBlock, err := b.one(root, "DATA_SET_MISSION")
	if err != nil {
		return nil, err
	}

	ds := &DataSet{
		DataSetID:        root.Props.Text("DATA_SET_ID"),
		Name:             info.Props.Text("DATA_SET_NAME"),
		Desc:             info.Props.Text("DATA_SET_DESC"),
		TerseDesc:        info.Props.Text("DATA_SET_TERSE_DESC"),
		CitationDesc:     info.Props.Text("CITATION_DESC"),
		AbstractDesc:     info.Props.Text("ABSTRACT_DESC"),
		ConfidenceNote:   info.Props.Text("CONFIDENCE_LEVEL_NOTE"),
		ProducerFullName: info.Props.Strings("PRODUCER_FULL_NAME"),
		MissionName:      missionBlock.Props.Text("MISSION_NAME"),
		References:       referenceKeys(root.SubsNamed("DATA_SET_REFERENCE_INFORMATION")),
		Extra:            root.Props.Without(knownSet("DATA_SET_ID")),
	}
	ds.ReleaseDate, _ = info.Props.Get("DATA_SET_RELEASE_DATE")
	ds.StartTime, _ = info.Props.Get("START_TIME")
	ds.StopTime, _ = info.Props.Get("STOP_TIME")
	for _, t := range targets {
		if name := t.Props.Text("TARGET_NAME"); name != "" {
			ds.Targets = append(ds.Targets, name)
		}
	}
	ds.Host = DataSetHost{
		InstrumentHostID: hostBlock.Props.Text("INSTRUMENT_HOST_ID"),
		InstrumentIDs:    hostBlock.Props.Strings("INSTRUMENT_ID"),
		Extra:            hostBlock.Props.Without(knownSet("INSTRUMENT_HOST_ID", "INSTRUMENT_ID")),
	}
	ds.Unrecognized = b.warnUnknown("DATA_SET", root.Subs,
		knownSet("DATA_SET_INFORMATION", "DATA_SET_TARGET", "DATA_SET_HOST",
			"DATA_SET_MISSION", "DATA_SET_REFERENCE_INFORMATION"))
	return ds, nil
}

// BuildDataSetMapProjection assembles the DataSetMapProjection variant.
func BuildDataSetMapProjection(doc *Document, log *zap.Logger) (*DataSetMapProjection, error) {
	b := &builder{doc: doc, log: log}
	root, err := b.rootBlock("DATA_SET_MAP_PROJECTION")
	if err != nil {
		return nil, err
	}
	info, err := b.one(root, "DATA_SET_MAP_PROJECTION_INFO")
	if err != nil {
		return nil, err
	}
	proj := &DataSetMapProjection{
		DataSetID:      root.Props.Text("DATA_SET_ID"),
		ProjectionType: info.Props.Text("MAP_PROJECTION_TYPE"),
		ProjectionDesc: info.Props.Text("MAP_PROJECTION_DESC"),
		RotationalDesc: info.Props.Text("ROTATIONAL_ELEMENT_DESC"),
		References:     referenceKeys(info.SubsNamed("DS_MAP_PROJECTION_REF_INFO")),
		Extra:          root.Props.Without(knownSet("DATA_SET_ID")),
	}
	proj.Unrecognized = b.warnUnknown("DATA_SET_MAP_PROJECTION", root.Subs,
		knownSet("DATA_SET_MAP_PROJECTION_INFO"))
	return proj, nil
}

// BuildPersonnel assembles the Personnel variant from one or many
// PERSONNEL blocks.
func BuildPersonnel(doc *Document, log *zap.Logger) (*Personnel, error) {
	b := &builder{doc: doc, log: log}
	var personnel Personnel
	for _, root := range doc.Blocks {
		if root.Name != "PERSONNEL" {
			continue
		}
		info, err := b.one(root, "PERSONNEL_INFORMATION")
		if err != nil {
			return nil, err
		}
		person := Person{
			PDSUserID:   root.Props.Text("PDS_USER_ID"),
			FullName:    info.Props.Text("FULL_NAME"),
			LastName:    info.Props.Text("LAST_NAME"),
			Institution: info.Props.Text("INSTITUTION_NAME"),
			AddressText: info.Props.Text("ADDRESS_TEXT"),
			Telephone:   info.Props.Text("TELEPHONE_NUMBER"),
			Extra:       root.Props.Without(knownSet("PDS_USER_ID")),
		}
		person.RegistrationDate, _ = info.Props.Get("REGISTRATION_DATE")
		for _, mail := range root.SubsNamed("PERSONNEL_ELECTRONIC_MAIL") {
			if id := mail.Props.Text("ELECTRONIC_MAIL_ID"); id != "" {
				person.Emails = append(person.Emails, id)
			}
		}
		person.Unrecognized = b.warnUnknown("PERSONNEL", root.Subs,
			knownSet("PERSONNEL_INFORMATION", "PERSONNEL_ELECTRONIC_MAIL"))
		personnel.Persons = append(personnel.Persons, person)
	}
	if len(personnel.Persons) == 0 {
		return nil, parseErr(doc.File, 1, 1, "", "missing required OBJECT = PERSONNEL")
	}
	return &personnel, nil
}

// BuildReference assembles the Reference variant from one or many
// REFERENCE blocks. Reference blocks carry keywords only.
func BuildReference(doc *Document, log *zap.Logger) (*Reference, error) {
	var ref Reference
	for _, root := range doc.Blocks {
		if root.Name != "REFERENCE" {
			continue
		}
		ref.Citations = append(ref.Citations, Citation{
			ReferenceKeyID: root.Props.Text("REFERENCE_KEY_ID"),
			Desc:           root.Props.Text("REFERENCE_DESC"),
			Extra:          root.Props.Without(knownSet("REFERENCE_KEY_ID", "REFERENCE_DESC")),
		})
	}
	if len(ref.Citations) == 0 {
		return nil, parseErr(doc.File, 1, 1, "", "missing required OBJECT = REFERENCE")
	}
	return &ref, nil
}

func buildAgent(block Block) Agent {
	return Agent{
		InstitutionName: block.Props.Text("INSTITUTION_NAME"),
		FacilityName:    block.Props.Text("FACILITY_NAME"),
		FullName:        block.Props.Text("FULL_NAME"),
		AddressText:     block.Props.Text("ADDRESS_TEXT"),
		Email:           block.Props.Text("ELECTRONIC_MAIL_ID"),
		Extra: block.Props.Without(knownSet(
			"INSTITUTION_NAME", "FACILITY_NAME", "FULL_NAME", "ADDRESS_TEXT", "ELECTRONIC_MAIL_ID")),
	}
}

func buildDirectory(block Block) VolumeDirectory {
	dir := VolumeDirectory{
		Name:  block.Props.Text("NAME"),
		Extra: block.Props.Without(knownSet("NAME")),
	}
	for _, sub := range block.SubsNamed("FILE") {
		dir.Files = append(dir.Files, VolumeFile{
			Name:  sub.Props.Text("FILE_NAME"),
			Extra: sub.Props.Without(knownSet("FILE_NAME")),
		})
	}
	for _, sub := range block.SubsNamed("DIRECTORY") {
		dir.Directories = append(dir.Directories, buildDirectory(sub))
	}
	return dir
}

// BuildVolumeDescriptor assembles the VolumeDescriptor variant. The
// CATALOG sub-object is required since it names the catalog files the
// website extractor must fetch.
func BuildVolumeDescriptor(doc *Document, log *zap.Logger) (*VolumeDescriptor, error) {
	b := &builder{doc: doc, log: log}
	root, err := b.rootBlock("VOLUME")
	if err != nil {
		return nil, err
	}
	catalogBlock, err := b.one(root, "CATALOG")
	if err != nil {
		return nil, err
	}
	producerBlock, err := b.one(root, "DATA_PRODUCER")
	if err != nil {
		return nil, err
	}
	supplierBlock, err := b.atMostOne(root, "DATA_SUPPLIER")
	if err != nil {
		return nil, err
	}

	vol := &VolumeDescriptor{
		VolumeID:   root.Props.Text("VOLUME_ID"),
		VolumeName: root.Props.Text("VOLUME_NAME"),
		DataSetID:  root.Props.Text("DATA_SET_ID"),
		Catalog:    map[Kind][]string{},
		Producer:   buildAgent(producerBlock),
		Extra:      root.Props.Without(knownSet("VOLUME_ID", "VOLUME_NAME", "DATA_SET_ID")),
	}
	if supplierBlock != nil {
		supplier := buildAgent(*supplierBlock)
		vol.Supplier = &supplier
	}
	for _, prop := range catalogBlock.Props {
		kind, ok := catalogKeywords[prop.Key]
		if !ok {
			continue
		}
		vol.Catalog[kind] = append(vol.Catalog[kind], prop.Value.Strings()...)
	}
	for _, sub := range root.SubsNamed("FILE") {
		vol.Files = append(vol.Files, VolumeFile{
			Name:  sub.Props.Text("FILE_NAME"),
			Extra: sub.Props.Without(knownSet("FILE_NAME")),
		})
	}
	for _, sub := range root.SubsNamed("DIRECTORY") {
		vol.Directories = append(vol.Directories, buildDirectory(sub))
	}
	vol.Unrecognized = b.warnUnknown("VOLUME", root.Subs,
		knownSet("CATALOG", "DATA_PRODUCER", "DATA_SUPPLIER", "FILE", "DIRECTORY"))
	return vol, nil
}
