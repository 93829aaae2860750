/*
 * gwpump - Copyright (C) 2026 gwpump contributors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

// Package ews exports folders and items from Microsoft Exchange via
// Exchange Web Services. It is export-only; items are converted to
// iCalendar and vCard on the way out.
package ews

import (
	"context"
	"encoding/xml"
)

// Caller executes one EWS SOAP operation. It exists so the driver can be
// tested against canned responses.
type Caller interface {
	Call(ctx context.Context, op string, req, resp interface{}) error
}

// ItemID is an EWS item identifier with its change key.
type ItemID struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr"`
}

// FolderID is an EWS folder identifier.
type FolderID struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr"`
}

// FindFolderRequest walks the folder tree below a distinguished folder.
type FindFolderRequest struct {
	XMLName   xml.Name `xml:"m:FindFolder"`
	Traversal string   `xml:"Traversal,attr"`
	Shape     FolderShape
	ParentIDs ParentFolderIDs
}

type FolderShape struct {
	XMLName   xml.Name `xml:"m:FolderShape"`
	BaseShape string   `xml:"t:BaseShape"`
	Extra     *AdditionalProperties
}

type AdditionalProperties struct {
	XMLName xml.Name   `xml:"t:AdditionalProperties"`
	Fields  []FieldURI `xml:"t:FieldURI"`
}

type FieldURI struct {
	FieldURI string `xml:"FieldURI,attr"`
}

type ParentFolderIDs struct {
	XMLName       xml.Name             `xml:"m:ParentFolderIds"`
	Distinguished *DistinguishedFolder `xml:"t:DistinguishedFolderId,omitempty"`
	Folder        *FolderRef           `xml:"t:FolderId,omitempty"`
}

type DistinguishedFolder struct {
	ID string `xml:"Id,attr"`
}

type FolderRef struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr,omitempty"`
}

type FindFolderResponse struct {
	Messages []FindFolderMessage `xml:"ResponseMessages>FindFolderResponseMessage"`
}

type FindFolderMessage struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
	RootFolder    struct {
		TotalItemsInView        int        `xml:"TotalItemsInView,attr"`
		IncludesLastItemInRange bool       `xml:"IncludesLastItemInRange,attr"`
		Folders                 FolderList `xml:"Folders"`
	} `xml:"RootFolder"`
}

// FolderList absorbs the typed folder elements (Folder, CalendarFolder,
// ContactsFolder, TasksFolder) into one shape.
type FolderList struct {
	Entries []BaseFolder `xml:",any"`
}

// BaseFolder is the common shape of Folder, CalendarFolder,
// ContactsFolder and TasksFolder elements.
type BaseFolder struct {
	XMLName        xml.Name
	FolderID       FolderID `xml:"FolderId"`
	ParentFolderID FolderID `xml:"ParentFolderId"`
	FolderClass    string   `xml:"FolderClass"`
	DisplayName    string   `xml:"DisplayName"`
	TotalCount     int      `xml:"TotalCount"`
}

// FindItemRequest pages through one folder, ids only.
type FindItemRequest struct {
	XMLName   xml.Name `xml:"m:FindItem"`
	Traversal string   `xml:"Traversal,attr"`
	Shape     ItemShape
	Page      IndexedPageItemView
	ParentIDs ParentFolderIDs
}

type ItemShape struct {
	XMLName            xml.Name `xml:"m:ItemShape"`
	BaseShape          string   `xml:"t:BaseShape"`
	IncludeMimeContent bool     `xml:"t:IncludeMimeContent,omitempty"`
}

type IndexedPageItemView struct {
	XMLName    xml.Name `xml:"m:IndexedPageItemView"`
	MaxEntries int      `xml:"MaxEntriesReturned,attr"`
	Offset     int      `xml:"Offset,attr"`
	BasePoint  string   `xml:"BasePoint,attr"`
}

type FindItemResponse struct {
	Messages []FindItemMessage `xml:"ResponseMessages>FindItemResponseMessage"`
}

type FindItemMessage struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
	RootFolder    struct {
		TotalItemsInView        int      `xml:"TotalItemsInView,attr"`
		IncludesLastItemInRange bool     `xml:"IncludesLastItemInRange,attr"`
		Items                   ItemList `xml:"Items"`
	} `xml:"RootFolder"`
}

// ItemList absorbs the typed item elements (Message, CalendarItem,
// Contact, Task, DistributionList) into one shape.
type ItemList struct {
	Entries []Item `xml:",any"`
}

// GetItemRequest fetches one item with all properties.
type GetItemRequest struct {
	XMLName xml.Name `xml:"m:GetItem"`
	Shape   ItemShape
	ItemIDs ItemIDs
}

type ItemIDs struct {
	XMLName xml.Name  `xml:"m:ItemIds"`
	IDs     []ItemRef `xml:"t:ItemId"`
}

type ItemRef struct {
	ID        string `xml:"Id,attr"`
	ChangeKey string `xml:"ChangeKey,attr,omitempty"`
}

type GetItemResponse struct {
	Messages []GetItemMessage `xml:"ResponseMessages>GetItemResponseMessage"`
}

type GetItemMessage struct {
	ResponseClass string   `xml:"ResponseClass,attr"`
	ResponseCode  string   `xml:"ResponseCode"`
	MessageText   string   `xml:"MessageText"`
	Items         ItemList `xml:"Items"`
}

// Item is the union of the typed item elements (CalendarItem, Contact,
// Task, DistributionList). XMLName tells them apart; unused fields stay
// zero.
type Item struct {
	XMLName xml.Name

	ItemID           ItemID   `xml:"ItemId"`
	ItemClass        string   `xml:"ItemClass"`
	Subject          string   `xml:"Subject"`
	Sensitivity      string   `xml:"Sensitivity"`
	Body             ItemBody `xml:"Body"`
	Categories       []string `xml:"Categories>String"`
	DateTimeCreated  string   `xml:"DateTimeCreated"`
	LastModifiedTime string   `xml:"LastModifiedTime"`
	UID              string   `xml:"UID"`

	// CalendarItem
	Start             string      `xml:"Start"`
	End               string      `xml:"End"`
	IsAllDayEvent     bool        `xml:"IsAllDayEvent"`
	LegacyFreeBusy    string      `xml:"LegacyFreeBusyStatus"`
	Location          string      `xml:"Location"`
	Organizer         *Recipient  `xml:"Organizer"`
	RequiredAttendees []Attendee  `xml:"RequiredAttendees>Attendee"`
	OptionalAttendees []Attendee  `xml:"OptionalAttendees>Attendee"`
	Recurrence        *Recurrence `xml:"Recurrence"`

	// Contact
	CompleteName    *CompleteName    `xml:"CompleteName"`
	CompanyName     string           `xml:"CompanyName"`
	JobTitle        string           `xml:"JobTitle"`
	Birthday        string           `xml:"Birthday"`
	EmailAddresses  []DictionaryItem `xml:"EmailAddresses>Entry"`
	PhoneNumbers    []DictionaryItem `xml:"PhoneNumbers>Entry"`
	PhysicalAddress []AddressEntry   `xml:"PhysicalAddresses>Entry"`

	// Task
	StartDate       string  `xml:"StartDate"`
	DueDate         string  `xml:"DueDate"`
	CompleteDate    string  `xml:"CompleteDate"`
	PercentComplete float64 `xml:"PercentComplete"`
	Status          string  `xml:"Status"`
	Importance      string  `xml:"Importance"`

	// DistributionList
	Members []Member `xml:"Members>Member"`

	Attachments []FileAttachment `xml:"Attachments>FileAttachment"`
}

// Recurrence is the subset of the Exchange recurrence model that maps
// onto an RRULE: the four absolute patterns plus the three range kinds.
// Relative patterns (e.g. "second Tuesday") are not carried over.
type Recurrence struct {
	Daily   *DailyPattern   `xml:"DailyRecurrence"`
	Weekly  *WeeklyPattern  `xml:"WeeklyRecurrence"`
	Monthly *MonthlyPattern `xml:"AbsoluteMonthlyRecurrence"`
	Yearly  *YearlyPattern  `xml:"AbsoluteYearlyRecurrence"`

	NoEnd    *struct{}      `xml:"NoEndRecurrence"`
	EndDate  *EndDateRange  `xml:"EndDateRecurrence"`
	Numbered *NumberedRange `xml:"NumberedRecurrence"`
}

type DailyPattern struct {
	Interval int `xml:"Interval"`
}

type WeeklyPattern struct {
	Interval   int    `xml:"Interval"`
	DaysOfWeek string `xml:"DaysOfWeek"`
}

type MonthlyPattern struct {
	Interval   int `xml:"Interval"`
	DayOfMonth int `xml:"DayOfMonth"`
}

type YearlyPattern struct {
	DayOfMonth int    `xml:"DayOfMonth"`
	Month      string `xml:"Month"`
}

type EndDateRange struct {
	StartDate string `xml:"StartDate"`
	EndDate   string `xml:"EndDate"`
}

type NumberedRange struct {
	StartDate           string `xml:"StartDate"`
	NumberOfOccurrences int    `xml:"NumberOfOccurrences"`
}

type ItemBody struct {
	BodyType string `xml:"BodyType,attr"`
	Content  string `xml:",chardata"`
}

type Recipient struct {
	Mailbox Mailbox `xml:"Mailbox"`
}

type Attendee struct {
	Mailbox      Mailbox `xml:"Mailbox"`
	ResponseType string  `xml:"ResponseType"`
}

type Mailbox struct {
	Name         string `xml:"Name"`
	EmailAddress string `xml:"EmailAddress"`
}

type Member struct {
	Mailbox Mailbox `xml:"Mailbox"`
}

type CompleteName struct {
	Title      string `xml:"Title"`
	FirstName  string `xml:"FirstName"`
	MiddleName string `xml:"MiddleName"`
	LastName   string `xml:"LastName"`
	Suffix     string `xml:"Suffix"`
	Nickname   string `xml:"Nickname"`
}

type DictionaryItem struct {
	Key   string `xml:"Key,attr"`
	Value string `xml:",chardata"`
}

type AddressEntry struct {
	Key             string `xml:"Key,attr"`
	Street          string `xml:"Street"`
	City            string `xml:"City"`
	State           string `xml:"State"`
	CountryOrRegion string `xml:"CountryOrRegion"`
	PostalCode      string `xml:"PostalCode"`
}

type FileAttachment struct {
	AttachmentID ItemID `xml:"AttachmentId"`
	Name         string `xml:"Name"`
	ContentType  string `xml:"ContentType"`
	ContentID    string `xml:"ContentId"`
}

// GetAttachmentRequest fetches attachment content for inlining.
type GetAttachmentRequest struct {
	XMLName xml.Name      `xml:"m:GetAttachment"`
	IDs     AttachmentIDs `xml:"m:AttachmentIds"`
}

type AttachmentIDs struct {
	XMLName xml.Name  `xml:"m:AttachmentIds"`
	IDs     []ItemRef `xml:"t:AttachmentId"`
}

type GetAttachmentResponse struct {
	Messages []GetAttachmentMessage `xml:"ResponseMessages>GetAttachmentResponseMessage"`
}

type GetAttachmentMessage struct {
	ResponseClass string `xml:"ResponseClass,attr"`
	ResponseCode  string `xml:"ResponseCode"`
	MessageText   string `xml:"MessageText"`
	Attachments   []struct {
		AttachmentID ItemID `xml:"AttachmentId"`
		Name         string `xml:"Name"`
		ContentType  string `xml:"ContentType"`
		Content      string `xml:"Content"`
	} `xml:"Attachments>FileAttachment"`
}

// GetFolderRequest binds a distinguished folder; used as the credential
// probe.
type GetFolderRequest struct {
	XMLName   xml.Name `xml:"m:GetFolder"`
	Shape     FolderShape
	FolderIDs FolderIDsElem
}

type FolderIDsElem struct {
	XMLName       xml.Name             `xml:"m:FolderIds"`
	Distinguished *DistinguishedFolder `xml:"t:DistinguishedFolderId,omitempty"`
}

type GetFolderResponse struct {
	Messages []GetFolderMessage `xml:"ResponseMessages>GetFolderResponseMessage"`
}

type GetFolderMessage struct {
	ResponseClass string     `xml:"ResponseClass,attr"`
	ResponseCode  string     `xml:"ResponseCode"`
	MessageText   string     `xml:"MessageText"`
	Folders       FolderList `xml:"Folders"`
}
