// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clinic

// Default returns the production clinic data. Each call returns a fresh
// copy that the caller may modify.
func Default() *Config {
	return &Config{
		Info: Info{
			Name:          "Solrei Behavioral Health",
			AssistantName: "Rianna",
			Phone:         "(407) 638-8903",
			Fax:           "(407) 602-0797",
			Email:         "contact@solreibehavioralhealth.com",
			Hours:         "Monday-Friday 9:00 AM - 5:00 PM EST",
			EmergencyText: "⚠️ If this is a medical emergency, please call 911 immediately.\n" +
				"For mental health crisis support, call or text 988 for the Suicide & Crisis Lifeline.",
			Website: "https://solreibehavioralhealth.com",
		},
		Practitioners: []Practitioner{
			{
				ID:          "jodene",
				FirstName:   "Jodene",
				LastName:    "Jensen",
				FullName:    "Jodene Jensen, PMHNP",
				Credentials: "PMHNP-BC",
				Specialties: []string{"anxiety", "depression", "trauma", "PTSD", "adult ADHD"},
				States: []string{"AK", "AZ", "CO", "FL", "HI", "ID", "IA", "KS", "MD", "MN", "MT",
					"NE", "NV", "NH", "NM", "ND", "OR", "SD", "WA", "WY", "DC"},
				Bio: "Jodene is a board-certified Psychiatric Mental Health Nurse Practitioner. " +
					"She has extensive experience supporting individuals facing a variety of mental health challenges, " +
					"including anxiety and panic disorders, depression, bipolar disorder, PTSD, ADHD, and OCD. " +
					"Jodene is committed to walking alongside you as an equal companion on your journey " +
					"toward healing and a more fulfilling life.",
			},
			{
				ID:          "katherine",
				FirstName:   "Katherine",
				LastName:    "Robins",
				FullName:    "Katherine Robins, PMHNP",
				Credentials: "PMHNP-BC",
				Specialties: []string{"bipolar disorder", "mood disorders", "schizophrenia", "psychosis"},
				States:      []string{"AK", "FL", "OR", "WA"},
				Bio: "Katie is a board-certified Psychiatric Mental Health Nurse Practitioner. " +
					"She specializes in the treatment of a wide range of mental health conditions, " +
					"including anxiety and panic disorders, depression, bipolar disorder, PTSD, " +
					"schizophrenia, and other psychotic disorders. Katie is deeply committed to " +
					"creating a safe, welcoming environment where patients feel heard, respected, " +
					"and empowered on their journey to mental wellness.",
			},
			{
				ID:          "megan",
				FirstName:   "Megan",
				LastName:    "Ramirez",
				FullName:    "Megan Ramirez, PMHNP",
				Credentials: "PMHNP-BC",
				Specialties: []string{"adolescent psychiatry", "family therapy", "child psychiatry", "ADHD"},
				States:      []string{"FL", "KS", "KY", "ME", "NH", "VT"},
				Bio: "Megan is a board-certified Psychiatric Mental Health Nurse Practitioner. " +
					"She offers comprehensive medication management and supportive therapy and values " +
					"creating a safe and collaborative environment. She is fluent in both English and Spanish, " +
					"and is dedicated to creating a supportive and compassionate environment for her patients.",
			},
		},
		States: map[string]string{
			"alaska": "AK", "arizona": "AZ", "colorado": "CO", "florida": "FL",
			"hawaii": "HI", "idaho": "ID", "iowa": "IA", "kansas": "KS",
			"kentucky": "KY", "maine": "ME", "maryland": "MD", "minnesota": "MN",
			"montana": "MT", "nebraska": "NE", "nevada": "NV", "new hampshire": "NH",
			"new mexico": "NM", "north dakota": "ND", "oregon": "OR",
			"south dakota": "SD", "vermont": "VT", "washington": "WA",
			"wyoming": "WY", "district of columbia": "DC", "dc": "DC",
		},
		Insurance: []string{
			"Aetna", "Cigna", "United Healthcare", "UHC",
			"Blue Cross Blue Shield", "BCBS", "Florida Blue",
			"Optum", "Oscar", "Oxford", "Self-Pay",
		},
		SelfPay: SelfPayRates{
			InitialAssessment: "$400 for a 55-minute initial assessment",
			FollowUpShort:     "$200 for a 25-minute follow-up appointment",
			FollowUpLong:      "$400 for a 55-minute follow-up appointment",
			PhoneConsultation: "FREE 15-minute phone consultation",
		},
		Conditions: []string{
			"Depression", "Anxiety", "ADHD", "Panic Episodes", "Bipolar Disorder",
			"PTSD", "Personality Disorders", "OCD", "Psychotic Disorders",
			"Insomnia", "Eating Disorders", "Substance Use Disorders",
		},
		Encouragements: []string{
			"You're taking a great step forward! 🌟",
			"We're excited to be part of your mental health journey! 💪",
			"Taking care of your mental health is a sign of strength! 🌈",
			"You're making a positive choice for yourself! ✨",
			"We're here to support you every step of the way! 🤝",
		},
		ConfirmationPrefix: "SBH",
	}
}
