// Copyright (C) 2026 PDSSP contributors.
// See LICENSE for copying information.

package pds3

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const missionCat = `PDS_VERSION_ID                  = PDS3
LABEL_REVISION_NOTE             = "2001-07-09, initial"
RECORD_TYPE                     = STREAM

OBJECT                          = MISSION
  MISSION_NAME                  = "MARS GLOBAL SURVEYOR"

  OBJECT                        = MISSION_INFORMATION
    MISSION_START_DATE          = 1994-10-12
    MISSION_STOP_DATE           = UNK
    MISSION_ALIAS_NAME          = "N/A"
    MISSION_DESC                = "The Mars Global Surveyor spacecraft
      mapped the surface of Mars from a polar orbit."
    MISSION_OBJECTIVES_SUMMARY  = "Global mapping of Mars."
  END_OBJECT                    = MISSION_INFORMATION

  OBJECT                        = MISSION_HOST
    INSTRUMENT_HOST_ID          = MGS
    OBJECT                      = MISSION_TARGET
      TARGET_NAME               = MARS
    END_OBJECT                  = MISSION_TARGET
    OBJECT                      = MISSION_TARGET
      TARGET_NAME               = PHOBOS
    END_OBJECT                  = MISSION_TARGET
    OBJECT                      = MISSION_TARGET
      TARGET_NAME               = SUN
    END_OBJECT                  = MISSION_TARGET
  END_OBJECT                    = MISSION_HOST

  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "ALBEEETAL1992"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "ALBEEETAL2001"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "ALBEE&PALLUCONI1990"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "CUNNINGHAM1996"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "DALLASETAL1997"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "ESPOSITOETAL1998"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "JPLD-12088"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "LEE1995"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
  OBJECT                        = MISSION_REFERENCE_INFORMATION
    REFERENCE_KEY_ID            = "ZUBERETAL1992"
  END_OBJECT                    = MISSION_REFERENCE_INFORMATION
END_OBJECT                      = MISSION
END
`

func TestParseMissionCatalog(t *testing.T) {
	log := zaptest.NewLogger(t)

	obj, err := ParseFile("mission.cat", missionCat, log)
	require.NoError(t, err)

	mission, ok := obj.(*Mission)
	require.True(t, ok)
	require.Equal(t, "MARS GLOBAL SURVEYOR", mission.Name)
	require.Equal(t, KindMission, mission.Kind())

	require.Equal(t, ValueDate, mission.StartDate.Kind)
	require.Equal(t, time.Date(1994, 10, 12, 0, 0, 0, 0, time.UTC), mission.StartDate.Date)
	require.True(t, mission.StopDate.IsUnknown())

	require.Equal(t, "MGS", mission.Host.InstrumentHostID)
	require.Equal(t, []string{"MARS", "PHOBOS", "SUN"}, mission.Host.Targets)

	require.Len(t, mission.References, 9)
	require.Contains(t, mission.References, "ZUBERETAL1992")
	require.Contains(t, mission.References, "ALBEE&PALLUCONI1990")
}

func TestMissionAliasRepair(t *testing.T) {
	// The archived Mars Global Surveyor file carries N/A for the alias.
	obj, err := ParseFile("mission.cat", missionCat, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, "MGS", obj.(*Mission).AliasName)
}

const personCat = `PDS_VERSION_ID                  = PDS3

OBJECT                          = PERSONNEL
  PDS_USER_ID                   = SSLAVNEY

  OBJECT                        = PERSONNEL_INFORMATION
    FULL_NAME                   = "Susan Slavney"
    LAST_NAME                   = SLAVNEY
    INSTITUTION_NAME            = "WASHINGTON UNIVERSITY"
    REGISTRATION_DATE           = 1988-11-01
    TELEPHONE_NUMBER            = 3149355493
  END_OBJECT                    = PERSONNEL_INFORMATION

  OBJECT                        = PERSONNEL_ELECTRONIC_MAIL
    ELECTRONIC_MAIL_ID          = "SLAVNEY@WUNDER.WUSTL.EDU"
  END_OBJECT                    = PERSONNEL_ELECTRONIC_MAIL
END_OBJECT                      = PERSONNEL

OBJECT                          = PERSONNEL
  PDS_USER_ID                   = RARVIDSON

  OBJECT                        = PERSONNEL_INFORMATION
    FULL_NAME                   = "Raymond Arvidson"
    LAST_NAME                   = ARVIDSON
    INSTITUTION_NAME            = "WASHINGTON UNIVERSITY"
    REGISTRATION_DATE           = 1987-06-15
  END_OBJECT                    = PERSONNEL_INFORMATION
END_OBJECT                      = PERSONNEL
END
`

func TestParsePersonnelCatalog(t *testing.T) {
	obj, err := ParseFile("person.cat", personCat, zaptest.NewLogger(t))
	require.NoError(t, err)

	personnel, ok := obj.(*Personnel)
	require.True(t, ok)
	require.Len(t, personnel.Persons, 2)

	first := personnel.Persons[0]
	require.Equal(t, "SSLAVNEY", first.PDSUserID)
	require.Equal(t, "Susan Slavney", first.FullName)
	require.Equal(t, []string{"SLAVNEY@WUNDER.WUSTL.EDU"}, first.Emails)
	require.Equal(t, time.Date(1988, 11, 1, 0, 0, 0, 0, time.UTC), first.RegistrationDate.Date)
}

const refCat = `PDS_VERSION_ID                  = PDS3

OBJECT                          = REFERENCE
  REFERENCE_KEY_ID              = "ZUBERETAL1992"
  REFERENCE_DESC                = "Zuber, M.T., et al., The Mars Observer
    Laser Altimeter investigation, JGR 97, 1992."
END_OBJECT                      = REFERENCE

OBJECT                          = REFERENCE
  REFERENCE_KEY_ID              = "ALBEEETAL2001"
  REFERENCE_DESC                = "Albee, A.L., et al., Overview of the
    Mars Global Surveyor mission, JGR 106, 2001."
END_OBJECT                      = REFERENCE
END
`

func TestParseReferenceCatalog(t *testing.T) {
	obj, err := ParseFile("ref.cat", refCat, zaptest.NewLogger(t))
	require.NoError(t, err)

	ref, ok := obj.(*Reference)
	require.True(t, ok)
	require.Len(t, ref.Citations, 2)
	require.Equal(t, []string{"ZUBERETAL1992", "ALBEEETAL2001"}, ref.ReferenceKeys())
	require.Contains(t, ref.Citations[0].Desc, "Laser Altimeter")
}

const voldescCat = `PDS_VERSION_ID                  = PDS3

OBJECT                          = VOLUME
  VOLUME_ID                     = MGSL_21XX
  VOLUME_NAME                   = "MGS MOLA PEDR ARCHIVE"
  DATA_SET_ID                   = "MGS-M-MOLA-3-PEDR-L1A-V1.0"

  OBJECT                        = DATA_PRODUCER
    INSTITUTION_NAME            = "GODDARD SPACE FLIGHT CENTER"
    FACILITY_NAME               = "MOLA SCIENCE TEAM"
    FULL_NAME                   = "David E. Smith"
  END_OBJECT                    = DATA_PRODUCER

  OBJECT                        = CATALOG
    MISSION_CATALOG             = "MISSION.CAT"
    INSTRUMENT_HOST_CATALOG     = "INSTHOST.CAT"
    INSTRUMENT_CATALOG          = "INST.CAT"
    DATA_SET_CATALOG            = "DS.CAT"
    PERSONNEL_CATALOG           = "PERSON.CAT"
    REFERENCE_CATALOG           = "REF.CAT"
  END_OBJECT                    = CATALOG
END_OBJECT                      = VOLUME
END
`

func TestParseVolumeDescriptor(t *testing.T) {
	obj, err := ParseFile("voldesc.cat", voldescCat, zaptest.NewLogger(t))
	require.NoError(t, err)

	vol, ok := obj.(*VolumeDescriptor)
	require.True(t, ok)
	require.Equal(t, "MGSL_21XX", vol.VolumeID)
	require.Equal(t, "GODDARD SPACE FLIGHT CENTER", vol.Producer.InstitutionName)
	require.Nil(t, vol.Supplier)

	require.Equal(t, []string{"MISSION.CAT"}, vol.Catalog[KindMission])
	require.Equal(t, []string{"DS.CAT"}, vol.Catalog[KindDataSet])
	require.Equal(t, []string{"REF.CAT"}, vol.Catalog[KindReference])
	require.NotContains(t, vol.Catalog, KindDataSetMapProjection)
}

func TestRoundTrip(t *testing.T) {
	for _, src := range []string{missionCat, personCat, refCat, voldescCat} {
		doc, err := Parse("round.cat", src)
		require.NoError(t, err)

		reparsed, err := Parse("round.cat", doc.Print())
		require.NoError(t, err)

		// Printing normalizes layout, so positions shift but nothing else.
		diff := cmp.Diff(doc, reparsed,
			cmpopts.IgnoreFields(Block{}, "Line"),
			cmpopts.IgnoreFields(Property{}, "Line"))
		require.Empty(t, diff)
	}
}

func TestStructuralViolations(t *testing.T) {
	log := zaptest.NewLogger(t)

	_, err := BuildMission(mustParse(t, `
OBJECT = MISSION
  MISSION_NAME = "M"
  OBJECT = MISSION_HOST
    OBJECT = MISSION_TARGET
      TARGET_NAME = MARS
    END_OBJECT = MISSION_TARGET
  END_OBJECT = MISSION_HOST
END_OBJECT = MISSION
END
`), log)
	require.Error(t, err)
	require.Contains(t, err.Error(), "MISSION_INFORMATION")

	_, err = BuildMission(mustParse(t, `
OBJECT = MISSION
  OBJECT = MISSION_INFORMATION
  END_OBJECT = MISSION_INFORMATION
  OBJECT = MISSION_HOST
  END_OBJECT = MISSION_HOST
END_OBJECT = MISSION
END
`), log)
	require.Error(t, err)
	require.Contains(t, err.Error(), "MISSION_TARGET")

	_, err = BuildVolumeDescriptor(mustParse(t, `
OBJECT = VOLUME
  VOLUME_ID = X
  OBJECT = DATA_PRODUCER
  END_OBJECT = DATA_PRODUCER
END_OBJECT = VOLUME
END
`), log)
	require.Error(t, err)
	require.Contains(t, err.Error(), "CATALOG")
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("bad.cat", "OBJECT = MISSION\nMISSION_NAME = \"X\"\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unclosed")

	_, err = Parse("bad.cat", "/* never closed\nOBJECT = MISSION\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated comment")

	_, err = Parse("bad.cat", "KEY = \"never closed\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated string")

	_, err = Parse("bad.cat", `
OBJECT = MISSION
END_OBJECT = MISSION_HOST
END
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not close")
}

func TestUnknownSubObjectsPreserved(t *testing.T) {
	obj, err := ParseFile("mission.cat", `
OBJECT = MISSION
  MISSION_NAME = "TEST MISSION"
  OBJECT = MISSION_INFORMATION
    MISSION_START_DATE = 2001-01-01
  END_OBJECT = MISSION_INFORMATION
  OBJECT = MISSION_HOST
    INSTRUMENT_HOST_ID = TM
    OBJECT = MISSION_TARGET
      TARGET_NAME = MOON
    END_OBJECT = MISSION_TARGET
  END_OBJECT = MISSION_HOST
  OBJECT = FUTURE_EXTENSION
    SOME_KEY = SOME_VALUE
  END_OBJECT = FUTURE_EXTENSION
END_OBJECT = MISSION
END
`, zaptest.NewLogger(t))
	require.NoError(t, err)

	mission := obj.(*Mission)
	require.Len(t, mission.Unrecognized, 1)
	require.Equal(t, "FUTURE_EXTENSION", mission.Unrecognized[0].Name)
	require.Equal(t, "SOME_VALUE", mission.Unrecognized[0].Props.Text("SOME_KEY"))
}

func TestGuessKind(t *testing.T) {
	cases := map[string]Kind{
		"VOLDESC.CAT":   KindVolumeDescriptor,
		"dsmap.cat":     KindDataSetMapProjection,
		"INSTHOST.CAT":  KindInstrumentHost,
		"inst.cat":      KindInstrument,
		"MISSION.CAT":   KindMission,
		"person.cat":    KindPersonnel,
		"REF.CAT":       KindReference,
		"dataset.cat":   KindDataSet,
		"ds.cat":        KindDataSet,
		"catalog.txt":   KindUnknown,
		"weirdname.cat": KindUnknown,
	}
	for filename, want := range cases {
		require.Equal(t, want, GuessKind(filename), filename)
	}
}

func TestFactoryFallsBackToRootObject(t *testing.T) {
	// A filename with no hint still resolves through the root object.
	obj, err := ParseFile("weirdname.cat", refCat, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, KindReference, obj.Kind())
}

func TestValueList(t *testing.T) {
	doc := mustParse(t, `
OBJECT = DATA_SET
  DATA_SET_ID = "X"
  OBJECT = DATA_SET_HOST
    INSTRUMENT_HOST_ID = MGS
    INSTRUMENT_ID = (MOLA, "TES")
  END_OBJECT = DATA_SET_HOST
END_OBJECT = DATA_SET
END
`)
	host := doc.Blocks[0].SubsNamed("DATA_SET_HOST")[0]
	require.Equal(t, []string{"MOLA", "TES"}, host.Props.Strings("INSTRUMENT_ID"))
}

func TestUnknownMarkers(t *testing.T) {
	doc := mustParse(t, `
OBJECT = MISSION
  A = UNK
  B = "N/A"
  C = NULL
  D = 42.5
END_OBJECT = MISSION
END
`)
	props := doc.Blocks[0].Props
	for _, key := range []string{"A", "B", "C"} {
		v, ok := props.Get(key)
		require.True(t, ok, key)
		require.True(t, v.IsUnknown(), key)
		require.Empty(t, v.String(), key)
	}
	v, _ := props.Get("D")
	require.Equal(t, ValueNumber, v.Kind)
	require.Equal(t, 42.5, v.Number)
}

func TestParseWeekDate(t *testing.T) {
	date, ok := ParseWeekDate("2004-W28-2")
	require.True(t, ok)
	require.Equal(t, time.Date(2004, time.July, 6, 0, 0, 0, 0, time.UTC), date)

	// The day defaults to Monday.
	date, ok = ParseWeekDate("2004-W28")
	require.True(t, ok)
	require.Equal(t, time.Date(2004, time.July, 5, 0, 0, 0, 0, time.UTC), date)

	for _, bad := range []string{
		"2006-W53",   // 2006 has 52 ISO weeks
		"2004-W54-1", // week out of range
		"2004-W28-8", // day out of range
		"2004-X28-2",
		"garbage",
	} {
		_, ok := ParseWeekDate(bad)
		require.False(t, ok, bad)
	}
}

func TestWeekDateValue(t *testing.T) {
	doc := mustParse(t, `
OBJECT = MISSION
  MISSION_START_DATE = 2004-W28-2
END_OBJECT = MISSION
END
`)
	v, ok := doc.Blocks[0].Props.Get("MISSION_START_DATE")
	require.True(t, ok)
	require.Equal(t, ValueDate, v.Kind)
	require.Equal(t, time.Date(2004, time.July, 6, 0, 0, 0, 0, time.UTC), v.Date)
}

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Parse("test.cat", src)
	require.NoError(t, err)
	return doc
}
