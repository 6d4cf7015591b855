package flow

import "github.com/vbtlab/trainpipe/internal/models"

// User-facing copy. Spanish, matching the audience of the service.
const (
	msgChooseFromList    = "Por favor, elige una opcion de la lista"
	msgChooseTraining    = "Elige qué quieres hacer en tu entrenamiento"
	msgOptionNotReady    = "Selecciona otra opción, esta aun no está lista."
	msgSendCSVOrEnd      = "Manda tus datos en csv o envía finitto para acabar la sesión."
	msgAlreadyRecording  = "Ya has seleccionado una opción. Actualmente estás REGISTRANDO ENTRENAMIENTO\nPara acabar esta sesión, responde finitto"
	msgSendMoreDocuments = "Envia más documentos o escribe finitto para acabar tu sesión"
	msgNotADRDocument    = "El documento debe ser un export ADR en csv."

	msgIdleError     = "Ha habido un problema, vuelve a enviar tu mensaje."
	msgTrainingError = "Ha habido un error con tu petición, vuelve a seleccionar la opción"
	msgAddError      = "Ha habido un error con tu petición, vuelve a empezar :)"
)

// List row ids and titles. Handlers match on both, so these must stay in
// sync with the list builders below.
const (
	rowTrainingID       = "training"
	rowTrainingTitle    = "Opciones entrenamiento"
	rowAddTrainingID    = "add_training"
	rowAddTrainingTitle = "Añade un entrenamiento"
	rowEstimateRMID     = "estimate_rm"
	rowEstimateRMTitle  = "Calcula tu RM"
)

// mainMenuList is the list offered from Idle.
func mainMenuList() models.InteractiveList {
	return models.InteractiveList{
		Header: "Menú principal",
		Body:   "¿Qué quieres hacer hoy?",
		Button: "Ver opciones",
		Sections: []models.InteractiveSection{{
			Rows: []models.InteractiveRow{
				{ID: rowTrainingID, Title: rowTrainingTitle, Description: "Gestiona tus sesiones de entrenamiento"},
			},
		}},
	}
}

// trainingMenuList is the list offered inside TrainingManagement. The RM
// estimation row is shown but its feature is not available yet; picking it
// gets the not-ready reply.
func trainingMenuList() models.InteractiveList {
	return models.InteractiveList{
		Header: "Entrenamiento",
		Body:   msgChooseTraining,
		Button: "Ver opciones",
		Sections: []models.InteractiveSection{{
			Rows: []models.InteractiveRow{
				{ID: rowAddTrainingID, Title: rowAddTrainingTitle, Description: "Registra una sesión desde tu encoder"},
				{ID: rowEstimateRMID, Title: rowEstimateRMTitle, Description: "Estima tu RM a partir de velocidad"},
			},
		}},
	}
}
