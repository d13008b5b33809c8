package models

type FacilityType string

const (
	FacilityHospital             FacilityType = "hospital"
	FacilityClinic               FacilityType = "clinic"
	FacilityCommunityClinic      FacilityType = "community_clinic"
	FacilityUpazilaHealthComplex FacilityType = "upazila_health_complex"
	FacilityUnionHealthCenter    FacilityType = "union_health_center"
)

var FacilityTypes = []FacilityType{
	FacilityHospital, FacilityClinic, FacilityCommunityClinic,
	FacilityUpazilaHealthComplex, FacilityUnionHealthCenter,
}

func (t FacilityType) Valid() bool {
	for _, v := range FacilityTypes {
		if t == v {
			return true
		}
	}
	return false
}

type WorkerType string

const (
	WorkerCHW       WorkerType = "CHW"
	WorkerDoctor    WorkerType = "doctor"
	WorkerNurse     WorkerType = "nurse"
	WorkerMidwife   WorkerType = "midwife"
	WorkerVolunteer WorkerType = "volunteer"
)

var WorkerTypes = []WorkerType{WorkerCHW, WorkerDoctor, WorkerNurse, WorkerMidwife, WorkerVolunteer}

func (t WorkerType) Valid() bool {
	for _, v := range WorkerTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Availability string

const (
	AvailabilityFullTime Availability = "full_time"
	AvailabilityPartTime Availability = "part_time"
	AvailabilityOnCall   Availability = "on_call"
)

func (a Availability) Valid() bool {
	return a == AvailabilityFullTime || a == AvailabilityPartTime || a == AvailabilityOnCall
}
