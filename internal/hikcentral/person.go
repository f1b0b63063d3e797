package hikcentral

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/roach88/gatesync/internal/entity"
	"github.com/roach88/gatesync/internal/fault"
	"github.com/roach88/gatesync/internal/window"
)

// genderUnknown is the Artemis code sent for every person; the registry does
// not carry gender.
const genderUnknown = 1

type face struct {
	FaceData string `json:"faceData"`
}

// personRequest is the body of person/single/add and person/single/update.
type personRequest struct {
	PersonID         string `json:"personId,omitempty"`
	PersonCode       string `json:"personCode"`
	PersonFamilyName string `json:"personFamilyName"`
	PersonGivenName  string `json:"personGivenName"`
	Gender           int    `json:"gender"`
	OrgIndexCode     string `json:"orgIndexCode"`
	Remark           string `json:"remark,omitempty"`
	PhoneNo          string `json:"phoneNo,omitempty"`
	Email            string `json:"email,omitempty"`
	Faces            []face `json:"faces,omitempty"`
	BeginTime        string `json:"beginTime"`
	EndTime          string `json:"endTime"`
}

type personIDRequest struct {
	PersonID string `json:"personId"`
}

type groupMember struct {
	ID string `json:"id"`
}

// groupRequest is the body of privilege/group/single/addPersons and
// deletePersons. Type 1 means the list holds persons.
type groupRequest struct {
	PrivilegeGroupID string        `json:"privilegeGroupId"`
	Type             int           `json:"type"`
	List             []groupMember `json:"list"`
}

func (c *Client) buildPerson(rec entity.Record, remark string) (personRequest, error) {
	given, family := rec.SplitName()
	code := rec.NationalID
	if code == "" {
		code = rec.ExternalID
	}

	p := personRequest{
		PersonCode:       code,
		PersonFamilyName: family,
		PersonGivenName:  given,
		Gender:           genderUnknown,
		OrgIndexCode:     c.orgIndexCode,
		PhoneNo:          rec.Contact.Phone,
		Email:            rec.Contact.Email,
		BeginTime:        window.Format(rec.ValidFrom),
		EndTime:          window.Format(rec.ValidTo),
	}
	if rec.UnitLabel != "" {
		p.Remark = fmt.Sprintf("%s via gatesync - unit %s", remark, rec.UnitLabel)
	} else {
		p.Remark = remark + " via gatesync"
	}

	if rec.FaceImagePath != "" {
		data, err := os.ReadFile(rec.FaceImagePath)
		if err != nil {
			return personRequest{}, fault.Transient("read face image", err)
		}
		p.Faces = []face{{FaceData: base64.StdEncoding.EncodeToString(data)}}
	}
	return p, nil
}
