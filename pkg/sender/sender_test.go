package sender

import "testing"

func TestBuildProposalsDedupsBySOPClass(t *testing.T) {
	jobs := []Job{
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", SOPInstanceUID: "a"},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", SOPInstanceUID: "b"},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.4", SOPInstanceUID: "c"},
	}
	proposals := buildProposals(jobs, false)
	if len(proposals) != 2 {
		t.Fatalf("got %d proposals, want 2 (one per distinct SOP class)", len(proposals))
	}
}

func TestBuildProposalsAssignsOddIDs(t *testing.T) {
	jobs := []Job{
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2"},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.4"},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.7"},
	}
	proposals := buildProposals(jobs, false)
	for i, p := range proposals {
		if p.ID%2 == 0 {
			t.Errorf("proposal[%d].ID = %d, want an odd presentation context ID", i, p.ID)
		}
	}
	for i := 1; i < len(proposals); i++ {
		if proposals[i].ID <= proposals[i-1].ID {
			t.Errorf("proposal IDs not strictly increasing: %d then %d", proposals[i-1].ID, proposals[i].ID)
		}
	}
}

func TestBuildProposalsUsesDefaultTransferSyntaxes(t *testing.T) {
	jobs := []Job{{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2"}}
	proposals := buildProposals(jobs, false)
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	if len(proposals[0].TransferSyntaxes) != len(DefaultTransferSyntaxes) {
		t.Errorf("got %d transfer syntaxes, want %d", len(proposals[0].TransferSyntaxes), len(DefaultTransferSyntaxes))
	}
}

func TestBuildProposalsEmptyJobs(t *testing.T) {
	if proposals := buildProposals(nil, false); len(proposals) != 0 {
		t.Errorf("got %d proposals for no jobs, want 0", len(proposals))
	}
}

func TestBuildProposalsNeverTranscodeUsesJobsOwnTransferSyntax(t *testing.T) {
	jobs := []Job{
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", TransferSyntax: "1.2.840.10008.1.2"},
		{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", TransferSyntax: "1.2.840.10008.1.2"},
	}
	proposals := buildProposals(jobs, true)
	if len(proposals) != 1 {
		t.Fatalf("got %d proposals, want 1", len(proposals))
	}
	if len(proposals[0].TransferSyntaxes) != 1 || proposals[0].TransferSyntaxes[0] != "1.2.840.10008.1.2" {
		t.Errorf("TransferSyntaxes = %v, want only the job's own transfer syntax", proposals[0].TransferSyntaxes)
	}
}
